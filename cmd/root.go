package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "ticketcheck"}

	root.AddCommand(serveCMD(), migrateCMD(), tokenCMD())
	_ = root.Execute()
}
