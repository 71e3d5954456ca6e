// Command circuitid checks the node set and connection override
// configuration of a circuit simulation.
package main

import "github.com/sarchlab/circuitid/circuitid/cmd"

func main() {
	cmd.Execute()
}
