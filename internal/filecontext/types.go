package filecontext

import "context"

// UploadedFileRef points at a file owned by the upload collaborator. It is
// copied by value into router requests and the per-conversation store.
type UploadedFileRef struct {
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
	FileName  string `json:"file_name"`
	FileType  string `json:"file_type"`
	FileSize  int64  `json:"file_size"`
}

// Uploader is the narrow contract to the file upload collaborator. Upload
// mechanics live outside this module.
type Uploader interface {
	Upload(ctx context.Context, fileName string, data []byte) (UploadedFileRef, error)
	Delete(ctx context.Context, path string) error
}
