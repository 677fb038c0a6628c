// Package haul is a presigning and transfer toolkit for S3-compatible
// object storage.
//
// It covers the three client-side concerns the raw storage API leaves
// to the caller:
//
//   - Presigned URLs and presigned POST forms, so untrusted parties can
//     fetch or upload single objects without holding credentials.
//   - A transfer manager that splits large objects into concurrently
//     transferred parts with per-part retry.
//   - Bucket addressing, resolving between virtual-host and path style
//     URLs for AWS and S3-compatible endpoints.
//
// Construct a client against AWS using the default credential chain:
//
//	client, err := haul.New(ctx, haul.Config{Region: "us-east-1"})
//
// For S3-compatible services (MinIO, R2, LocalStack), configure the
// endpoint and static credentials:
//
//	client, err := haul.New(ctx, haul.Config{
//	    Region:      "us-east-1",
//	    Endpoint:    "http://localhost:9000",
//	    Credentials: haul.StaticCredentials("access-key", "secret-key", ""),
//	})
//
// A custom endpoint switches auto addressing to path style, which is
// what these services expect.
package haul
