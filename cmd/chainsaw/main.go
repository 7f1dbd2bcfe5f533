// Command chainsaw is the reference CLI: it wires pkg/loader, pkg/mapping,
// pkg/hunter and pkg/collate together behind the cobra command tree
// defined in the root cmd package.
package main

import (
	"github.com/WithSecureLabs/chainsaw/cmd"
)

func main() {
	cmd.Execute()
}
