package index

// Blob is the index row for a stored object.
type Blob struct {
	// SHA256 is the 64-character lowercase hex content hash.
	SHA256 string `json:"sha256"`

	// Size in bytes.
	Size int64 `json:"size"`

	// Type is the MIME type recorded at upload, or "" when unknown.
	Type string `json:"type,omitempty"`

	// Uploaded is the unix timestamp (seconds) of the first commit.
	Uploaded int64 `json:"uploaded"`
}

// OwnerBlobsOptions bounds GetOwnerBlobs by upload time. Both bounds are
// inclusive; nil means unbounded.
type OwnerBlobsOptions struct {
	Since *int64
	Until *int64
}

// Candidate is a blob considered by a retention rule.
type Candidate struct {
	SHA256   string
	Type     string
	Size     int64
	Uploaded int64

	// Accessed is the last access timestamp, nil when never recorded.
	Accessed *int64
}

// LastSeen returns the access timestamp when present, else the upload time.
func (c Candidate) LastSeen() int64 {
	if c.Accessed != nil {
		return *c.Accessed
	}
	return c.Uploaded
}

// Stats holds aggregate counts over the index.
type Stats struct {
	Blobs     int64 `json:"blobs"`
	Owners    int64 `json:"owners"`
	TotalSize int64 `json:"total_size"`
}
