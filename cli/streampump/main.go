package main

import (
	"os"

	streampumpcmder "github.com/papercomputeco/streampump/cmd/streampump"
)

func main() {
	cmd := streampumpcmder.NewStreamPumpCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
