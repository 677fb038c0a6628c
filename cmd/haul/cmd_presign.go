package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/justapithecus/haul/haul"
)

var presignCmd = &cobra.Command{
	Use:   "presign",
	Short: "Generate presigned URLs and POST forms",
}

var presignGetCmd = &cobra.Command{
	Use:   "get s3://bucket/key",
	Short: "Presign an object download",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresignGet,
}

var presignPutCmd = &cobra.Command{
	Use:   "put s3://bucket/key",
	Short: "Presign an object upload",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresignPut,
}

var presignPostCmd = &cobra.Command{
	Use:   "post s3://bucket/key",
	Short: "Presign a browser POST upload form",
	Long: "Generate a policy-constrained POST form for direct browser uploads. " +
		"The key may contain ${filename}, replaced by the browser with the chosen file's name.",
	Args: cobra.ExactArgs(1),
	RunE: runPresignPost,
}

var (
	presignExpires     time.Duration
	presignContentType string
	presignAttachment  bool
	postMaxSize        int64
	postStartsWith     string
)

func init() {
	rootCmd.AddCommand(presignCmd)
	presignCmd.AddCommand(presignGetCmd)
	presignCmd.AddCommand(presignPutCmd)
	presignCmd.AddCommand(presignPostCmd)

	presignCmd.PersistentFlags().DurationVar(&presignExpires, "expires", 15*time.Minute, "URL lifetime, between 1s and 168h")

	presignGetCmd.Flags().BoolVar(&presignAttachment, "attachment", false, "Force download via Content-Disposition")
	presignPutCmd.Flags().StringVar(&presignContentType, "content-type", "", "Content-Type the uploader must send")

	presignPostCmd.Flags().Int64Var(&postMaxSize, "max-size", 0, "Maximum upload size in bytes (0 = unlimited)")
	presignPostCmd.Flags().StringVar(&postStartsWith, "starts-with", "", "Require the key to start with this prefix")
	presignPostCmd.Flags().StringVar(&presignContentType, "content-type", "", "Content-Type the form must send")
}

func runPresignGet(cmd *cobra.Command, args []string) error {
	bucket, key, err := parseObjectURL(args[0])
	if err != nil {
		return err
	}
	client, err := newStorageClient(cmd.Context(), haul.Config{})
	if err != nil {
		return err
	}

	opts := haul.PresignOptions{Expires: presignExpires}
	if presignAttachment {
		opts.ResponseContentDisposition = "attachment"
	}
	req, err := client.PresignGet(cmd.Context(), bucket, key, opts)
	if err != nil {
		return err
	}

	logger.Debug().Time("expires_at", req.ExpiresAt).Msg("presigned GET")
	fmt.Println(req.URL)
	return nil
}

func runPresignPut(cmd *cobra.Command, args []string) error {
	bucket, key, err := parseObjectURL(args[0])
	if err != nil {
		return err
	}
	client, err := newStorageClient(cmd.Context(), haul.Config{})
	if err != nil {
		return err
	}

	req, err := client.PresignPut(cmd.Context(), bucket, key, haul.PresignOptions{
		Expires:     presignExpires,
		ContentType: presignContentType,
	})
	if err != nil {
		return err
	}

	for name, values := range req.SignedHeader {
		logger.Info().Str("header", name+": "+strings.Join(values, ",")).Msg("required header")
	}
	fmt.Println(req.URL)
	return nil
}

func runPresignPost(cmd *cobra.Command, args []string) error {
	bucket, key, err := parseObjectURL(args[0])
	if err != nil {
		return err
	}
	client, err := newStorageClient(cmd.Context(), haul.Config{})
	if err != nil {
		return err
	}

	post, err := client.PresignPost(cmd.Context(), bucket, key, postOptionsFromFlags())
	if err != nil {
		return err
	}

	// Emit the form as JSON so scripts can feed it straight to curl or
	// an HTML form builder.
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(post)
}

// postOptionsFromFlags maps the presign post flags onto policy options.
// --starts-with constrains the key field; --content-type becomes an
// exact-match form field.
func postOptionsFromFlags() haul.PostOptions {
	opts := haul.PostOptions{
		Expires: presignExpires,
		MaxSize: postMaxSize,
	}
	if postStartsWith != "" {
		opts.StartsWith = map[string]string{"key": postStartsWith}
	}
	if presignContentType != "" {
		opts.Fields = map[string]string{"Content-Type": presignContentType}
	}
	return opts
}
