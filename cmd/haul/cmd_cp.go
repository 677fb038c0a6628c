package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/justapithecus/haul/haul"
)

var cpCmd = &cobra.Command{
	Use:   "cp SOURCE DEST",
	Short: "Copy between local files and object storage",
	Long: "Copy a local file to storage (cp ./file s3://bucket/key) or an object " +
		"to a local file (cp s3://bucket/key ./file). Large transfers go multipart " +
		"with concurrent parts and per-part retry.",
	Args: cobra.ExactArgs(2),
	RunE: runCp,
}

var (
	cpPartSizeMiB int64
	cpConcurrency int
	cpGzip        bool
	cpContentType string
)

func init() {
	rootCmd.AddCommand(cpCmd)

	cpCmd.Flags().Int64Var(&cpPartSizeMiB, "part-size", 0, "Part size in MiB (default 8, minimum 5)")
	cpCmd.Flags().IntVar(&cpConcurrency, "concurrency", 0, "Concurrent part transfers (default 5)")
	cpCmd.Flags().BoolVar(&cpGzip, "gzip", false, "Compress the upload in flight (upload only)")
	cpCmd.Flags().StringVar(&cpContentType, "content-type", "", "Content-Type for the uploaded object")
}

func runCp(cmd *cobra.Command, args []string) error {
	src, dst := args[0], args[1]
	srcRemote := strings.HasPrefix(src, "s3://")
	dstRemote := strings.HasPrefix(dst, "s3://")

	if srcRemote == dstRemote {
		return fmt.Errorf("exactly one of SOURCE and DEST must be an s3:// URL")
	}

	client, err := newStorageClient(cmd.Context(), haul.Config{
		PartSize:    cpPartSizeMiB << 20,
		Concurrency: cpConcurrency,
		Checksum:    haul.NewSHA256Checksum(),
	})
	if err != nil {
		return err
	}

	if dstRemote {
		return uploadFile(cmd, client, src, dst)
	}
	return downloadFile(cmd, client, src, dst)
}

func uploadFile(cmd *cobra.Command, client *haul.Client, src, dst string) error {
	bucket, key, err := parseObjectURL(dst)
	if err != nil {
		return err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		key += filepath.Base(src)
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := client.Upload(cmd.Context(), bucket, key, f, haul.UploadOptions{
		ContentType: cpContentType,
		Size:        info.Size(),
		Gzip:        cpGzip,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", src, err)
	}

	logger.Info().
		Str("bucket", bucket).
		Str("key", key).
		Int64("bytes", result.Size).
		Int("parts", result.Parts).
		Str("checksum", result.Checksum).
		Dur("elapsed", time.Since(start)).
		Msg("uploaded")
	return nil
}

func downloadFile(cmd *cobra.Command, client *haul.Client, src, dst string) error {
	bucket, key, err := parseObjectURL(src)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("missing object key: %s", src)
	}

	fi, err := os.Stat(dst)
	if err == nil && fi.IsDir() {
		dst = filepath.Join(dst, filepath.Base(key))
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}

	start := time.Now()
	n, err := client.Download(cmd.Context(), bucket, key, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("download %s: %w", src, err)
	}

	logger.Info().
		Str("bucket", bucket).
		Str("key", key).
		Int64("bytes", n).
		Dur("elapsed", time.Since(start)).
		Msg("downloaded")
	return nil
}
