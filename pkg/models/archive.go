package models

// ExtractedEntry is one file unpacked from an uploaded archive. It lives only
// in the job's working directory.
type ExtractedEntry struct {
	Name         string `json:"name"`
	AbsolutePath string `json:"absolute_path"`
	SizeBytes    int64  `json:"size_bytes"`
	IsDirectory  bool   `json:"is_directory"`
}

// MediaCandidate is an extracted file whose extension is a supported media type.
type MediaCandidate struct {
	Name         string `json:"name"`
	AbsolutePath string `json:"absolute_path"`
	SizeBytes    int64  `json:"size_bytes"`
	Extension    string `json:"extension"` // lowercase, with leading dot
}
