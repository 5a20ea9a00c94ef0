package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/cloudloader/cloudinstaller/internal/cli"
)

func main() {
	// A .env next to the server is optional; CLOUDINSTALLER_* may also come from the shell.
	_ = godotenv.Load()
	os.Exit(cli.Execute())
}
