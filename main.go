package main

import "github.com/gkatanacio/batch-downloader/cmd"

func main() {
	cmd.Execute()
}
