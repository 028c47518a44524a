// Tethys is the onboard runtime of the vehicle control framework.
package main

import "github.com/seaverlab/tethys/cmd/tethys/cmd"

func main() {
	cmd.Execute()
}
