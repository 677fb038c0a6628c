package main

import (
	"testing"
	"time"
)

func TestParseObjectURL(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{name: "bucket and key", raw: "s3://data-bucket/docs/report.pdf", wantBucket: "data-bucket", wantKey: "docs/report.pdf"},
		{name: "bucket only", raw: "s3://data-bucket", wantBucket: "data-bucket"},
		{name: "bucket with trailing slash", raw: "s3://data-bucket/", wantBucket: "data-bucket"},
		{name: "not an s3 url", raw: "http://example.com/key", wantErr: true},
		{name: "missing bucket", raw: "s3:///key", wantErr: true},
		{name: "local path", raw: "./file.txt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := parseObjectURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseObjectURL(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseObjectURL(%q) error = %v", tt.raw, err)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("parseObjectURL(%q) = (%q, %q), want (%q, %q)",
					tt.raw, bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestPostOptionsFromFlags(t *testing.T) {
	restore := func() {
		presignExpires = 15 * time.Minute
		presignContentType = ""
		postMaxSize = 0
		postStartsWith = ""
	}
	restore()
	t.Cleanup(restore)

	opts := postOptionsFromFlags()
	if opts.StartsWith != nil {
		t.Errorf("StartsWith = %v, want nil without --starts-with", opts.StartsWith)
	}
	if opts.Fields != nil {
		t.Errorf("Fields = %v, want nil without --content-type", opts.Fields)
	}

	presignExpires = time.Hour
	presignContentType = "image/png"
	postMaxSize = 10 << 20
	postStartsWith = "incoming/"

	opts = postOptionsFromFlags()
	if opts.Expires != time.Hour {
		t.Errorf("Expires = %v, want 1h", opts.Expires)
	}
	if opts.MaxSize != 10<<20 {
		t.Errorf("MaxSize = %d, want %d", opts.MaxSize, 10<<20)
	}
	if got := opts.StartsWith["key"]; got != "incoming/" {
		t.Errorf(`StartsWith["key"] = %q, want "incoming/"`, got)
	}
	if got := opts.Fields["Content-Type"]; got != "image/png" {
		t.Errorf(`Fields["Content-Type"] = %q, want "image/png"`, got)
	}
}
