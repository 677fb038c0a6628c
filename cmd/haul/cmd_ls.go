package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justapithecus/haul/haul"
)

var lsCmd = &cobra.Command{
	Use:   "ls s3://bucket[/prefix]",
	Short: "List objects under a prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

var lsLong bool

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "Show size and modification time")
}

func runLs(cmd *cobra.Command, args []string) error {
	bucket, prefix, err := parseObjectURL(args[0])
	if err != nil {
		return err
	}
	client, err := newStorageClient(cmd.Context(), haul.Config{})
	if err != nil {
		return err
	}

	it := client.List(cmd.Context(), bucket, prefix)
	defer it.Close()

	var count int
	for it.Next() {
		obj := it.Object()
		if lsLong {
			fmt.Printf("%12d  %s  %s\n", obj.Size, obj.LastModified.Format("2006-01-02 15:04:05"), obj.Key)
		} else {
			fmt.Println(obj.Key)
		}
		count++
	}
	if err := it.Err(); err != nil {
		return err
	}

	logger.Debug().Int("objects", count).Msg("listing complete")
	return nil
}
