// Package hunter streams records from per-file iterators, evaluates the
// enabled rule set against each one, and yields Detections.
//
// Grounded on original_source/src/hunt.rs's Hunter::hunt (sequential
// per-file evaluation, per-file-scoped aggregation, the from/to skip
// window) with a dispatch.Run feeder/worker pattern for the cross-file
// concurrency skeleton.
package hunter

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/markuskont/go-dispatch"
	"github.com/sirupsen/logrus"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
	"github.com/WithSecureLabs/chainsaw/pkg/mapping"
	"github.com/WithSecureLabs/chainsaw/pkg/rule"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// Source pulls documents out of one file, one at a time. Next returns
// io.EOF once the file is exhausted. Implementations own their own
// decoding (EVTX, JSONL, ...); the hunter never inspects file bytes.
type Source interface {
	Next() (*document.Document, error)
	Close() error
}

// File names a Source for diagnostics and for the Detection.File a match
// is attributed to.
type File struct {
	Name   string
	Source Source
}

// Detection is one (rule, record) match, or one satisfied aggregate
// bucket, materialised by the hunter.
type Detection struct {
	RuleID    uuid.UUID
	RuleName  string
	Group     string
	Level     rule.Level
	File      string
	Timestamp time.Time
	Document  *document.Document
}

// Config configures a Hunter.
type Config struct {
	// Rules is the compiled rule set to evaluate.
	Rules []*rule.Rule
	// Preconditions maps a rule id onto the mapping-resolved filter that
	// must also hold for that rule to match, per mapping.ResolvePreconditions.
	Preconditions map[uuid.UUID]tau.Node
	// Groups are standalone mapping hunts evaluated independently of Rules.
	Groups []*mapping.Group

	// TimestampPath is where a record's event timestamp is read from.
	// Defaults to Event.System.TimeCreated.
	TimestampPath string
	// TimestampLayout is the time.Parse layout Timestamp values use.
	// Defaults to time.RFC3339Nano.
	TimestampLayout string

	// From and To bound the admitted time window; a record with a
	// timestamp on or outside either boundary is dropped, per
	// original_source/src/hunt.rs::Hunter::skip.
	From, To *time.Time

	// SkipErrors, when true, logs and continues past a record that fails
	// to parse or whose timestamp fails to parse, instead of aborting the
	// whole file.
	SkipErrors bool

	Workers int
	Log     *logrus.Entry
}

type boundRule struct {
	rule *rule.Rule
	tree tau.Node
}

// Hunter evaluates a compiled rule set (plus any standalone mapping
// groups) against a stream of per-file record sources.
type Hunter struct {
	universal []boundRule
	buckets   map[bucketKey][]boundRule
	groups    []*mapping.Group

	timestampPath   document.Path
	timestampLayout string
	from, to        *time.Time
	skipErrors      bool
	workers         int
	log             *logrus.Entry
}

// New builds a Hunter, partitioning cfg.Rules into precondition buckets
// so that evaluation can skip rules whose precondition literals don't
// match a given record.
func New(cfg Config) *Hunter {
	h := &Hunter{
		buckets:         make(map[bucketKey][]boundRule),
		groups:          cfg.Groups,
		timestampLayout: cfg.TimestampLayout,
		from:            cfg.From,
		to:              cfg.To,
		skipErrors:      cfg.SkipErrors,
		workers:         cfg.Workers,
		log:             cfg.Log,
	}
	if h.timestampLayout == "" {
		h.timestampLayout = time.RFC3339Nano
	}
	if cfg.TimestampPath != "" {
		h.timestampPath = document.ParsePath(cfg.TimestampPath)
	} else {
		h.timestampPath = document.ParsePath("Event.System.TimeCreated")
	}
	if h.workers < 1 {
		h.workers = 1
	}
	if h.log == nil {
		h.log = logrus.NewEntry(logrus.StandardLogger())
	}

	for _, r := range cfg.Rules {
		tree := r.Tree
		var precondition tau.Node
		if p, ok := cfg.Preconditions[r.ID]; ok {
			precondition = p
			tree = tau.And{p, r.Tree}
		}
		bound := boundRule{rule: r, tree: tree}

		if precondition == nil {
			h.universal = append(h.universal, bound)
			continue
		}
		keys, ok := extractBucketKeys(precondition)
		if !ok {
			h.universal = append(h.universal, bound)
			continue
		}
		for _, k := range keys {
			h.buckets[k] = append(h.buckets[k], bound)
		}
	}

	return h
}

// skip reports whether timestamp falls on or outside the [from, to]
// boundary and should be dropped before evaluation, matching
// original_source's Hunter::skip (<=/>= on both boundaries).
func (h *Hunter) skip(ts time.Time) bool {
	if h.from != nil && !ts.After(*h.from) {
		return true
	}
	if h.to != nil && !ts.Before(*h.to) {
		return true
	}
	return false
}

// candidates returns every bound rule that should be evaluated against d:
// the universal bucket plus whichever literal bucket d's own Provider/
// EventID resolve to.
func (h *Hunter) candidates(d *document.Document) []boundRule {
	out := make([]boundRule, 0, len(h.universal))
	out = append(out, h.universal...)
	if key, ok := documentBucketKey(d); ok {
		out = append(out, h.buckets[key]...)
	}
	return out
}

type aggBucket struct {
	rule *rule.Rule
	hits map[uint64][]aggHit
}

type aggHit struct {
	doc *document.Document
	ts  time.Time
}

// HuntFile sequentially evaluates every record a Source yields: within a
// file, record processing is strictly sequential. Aggregation buckets are
// scoped to this call: they are resolved into Detections once the file is
// exhausted, never carried over to another file, matching
// original_source's per-file Hunter::hunt.
func (h *Hunter) HuntFile(ctx context.Context, f File) ([]Detection, error) {
	aggregates := make(map[uuid.UUID]*aggBucket)
	var out []Detection

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		doc, err := f.Source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if h.skipErrors {
				h.log.WithError(err).WithField("file", f.Name).Warn("hunter: skipping unreadable record")
				continue
			}
			return out, fmt.Errorf("hunter: %s: %w", f.Name, err)
		}

		ts, ok, err := h.timestamp(doc)
		if err != nil {
			return out, fmt.Errorf("hunter: %s: %w", f.Name, err)
		}
		if !ok {
			continue
		}
		if h.skip(ts) {
			continue
		}

		for _, g := range h.groups {
			matched, applicable := g.Tree.Match(doc)
			if !matched || !applicable {
				continue
			}
			out = append(out, Detection{
				RuleName:  g.Name,
				Group:     g.Name,
				File:      f.Name,
				Timestamp: ts,
				Document:  doc,
			})
		}

		for _, br := range h.candidates(doc) {
			matched, applicable := br.tree.Match(doc)
			if !matched || !applicable {
				continue
			}

			if !br.rule.IsAggregation() {
				out = append(out, Detection{
					RuleID:    br.rule.ID,
					RuleName:  br.rule.Name,
					Group:     br.rule.Group,
					Level:     br.rule.Level,
					File:      f.Name,
					Timestamp: ts,
					Document:  doc,
				})
				continue
			}

			bucket := aggregates[br.rule.ID]
			if bucket == nil {
				bucket = &aggBucket{rule: br.rule, hits: make(map[uint64][]aggHit)}
				aggregates[br.rule.ID] = bucket
			}
			key, ok := hashFields(doc, br.rule.Aggregate.Fields)
			if !ok {
				continue
			}
			bucket.hits[key] = append(bucket.hits[key], aggHit{doc: doc, ts: ts})
		}
	}

	for _, bucket := range aggregates {
		for _, hits := range bucket.hits {
			if !bucket.rule.Aggregate.Satisfied(int64(len(hits))) {
				continue
			}
			earliest := hits[0]
			for _, hit := range hits[1:] {
				if hit.ts.Before(earliest.ts) {
					earliest = hit
				}
			}
			out = append(out, Detection{
				RuleID:    bucket.rule.ID,
				RuleName:  bucket.rule.Name,
				Group:     bucket.rule.Group,
				Level:     bucket.rule.Level,
				File:      f.Name,
				Timestamp: earliest.ts,
				Document:  earliest.doc,
			})
		}
	}

	return out, nil
}

// timestamp resolves a record's timestamp field. A missing field silently
// drops the record (no timestamp, nothing to correlate or window). A
// present-but-unparseable field is a recoverable-or-fatal error per
// h.skipErrors, mirroring original_source's Hunter::hunt timestamp branch.
func (h *Hunter) timestamp(d *document.Document) (time.Time, bool, error) {
	v := d.GetPath(h.timestampPath)
	s, ok := v.AsString()
	if !ok {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(h.timestampLayout, s)
	if err != nil {
		if h.skipErrors {
			h.log.WithError(err).WithField("value", s).Warn("hunter: skipping record with unparseable timestamp")
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return ts, true, nil
}

func hashFields(d *document.Document, fields []string) (uint64, bool) {
	sum := fnv.New64a()
	for _, field := range fields {
		v := d.Get(field)
		s, ok := scalarString(v)
		if !ok {
			return 0, false
		}
		_, _ = sum.Write([]byte(s))
		_, _ = sum.Write([]byte{0})
	}
	return sum.Sum64(), true
}

func scalarString(v document.Value) (string, bool) {
	if v.IsAbsent() || v.IsNull() {
		return "", false
	}
	if s, ok := v.AsString(); ok {
		return s, true
	}
	if i, ok := v.AsInt64(); ok {
		return strconv.FormatInt(i, 10), true
	}
	if f, ok := v.AsFloat64(); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	if b, ok := v.AsBool(); ok {
		return strconv.FormatBool(b), true
	}
	return "", false
}

// Run fans files out across a bounded worker pool, one worker per file at
// a time; each worker owns its file iterator for the file's lifetime.
// Detections are delivered on the returned channel, which is closed once
// every file has been processed or ctx is cancelled. Each File's Source.Close is called
// exactly once, whether or not HuntFile returns an error.
func (h *Hunter) Run(ctx context.Context, files []File) (<-chan Detection, <-chan error) {
	out := make(chan Detection, h.workers*4)
	errs := make(chan error, len(files))

	go func() {
		defer close(out)
		defer close(errs)

		_ = dispatch.Run(dispatch.Config{
			Async:   false,
			Workers: h.workers,
			FeederFunc: func(tasks chan<- dispatch.Task, stop <-chan struct{}) {
				dispatched := 0
				defer func() {
					for _, f := range files[dispatched:] {
						f.Source.Close()
					}
				}()
				for i := range files {
					f := files[i]
					select {
					case <-stop:
						return
					case <-ctx.Done():
						return
					case tasks <- func(id, count int, taskCtx context.Context) error {
						defer f.Source.Close()
						detections, err := h.HuntFile(ctx, f)
						for _, d := range detections {
							select {
							case out <- d:
							case <-ctx.Done():
								return ctx.Err()
							}
						}
						if err != nil {
							errs <- err
						}
						return nil
					}:
						dispatched++
					}
				}
			},
			ErrFunc: func(err error) bool {
				if err != nil {
					errs <- err
				}
				return true
			},
		})
	}()

	return out, errs
}
