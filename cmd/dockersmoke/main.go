// cmd/dockersmoke/main.go
package main

import (
	"os"

	"github.com/rusenback/dockersmoke/internal/logger"
)

func main() {
	err := newRootCmd().Execute()
	_ = logger.CloseFileWriter()
	if err != nil {
		os.Exit(1)
	}
}
