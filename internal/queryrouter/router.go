// Package queryrouter classifies a user submission into one of the three
// execution paths: web search, research synthesis, or file analysis.
package queryrouter

import (
	"strings"

	"github.com/lumenlabs/lumen/internal/filecontext"
	"github.com/lumenlabs/lumen/internal/search"
)

// Path is the execution path chosen for a submission.
type Path string

const (
	PathSearch       Path = "search"
	PathResearch     Path = "research"
	PathFileAnalysis Path = "file_analysis"
)

// fileKeywords is the fixed vocabulary used to detect follow-up questions
// about previously attached files. It is a heuristic, not a contract, and
// deliberately small to limit false positives on common words.
var fileKeywords = []string{
	"file",
	"files",
	"document",
	"documents",
	"pdf",
	"attachment",
	"attached",
	"upload",
	"uploaded",
	"analyze",
	"analyse",
	"summarize",
	"summarise",
}

// Input carries everything a routing decision depends on. Routing is a pure
// function of its fields; the caller is responsible for loading StoredFiles
// from the conversation file context beforehand.
type Input struct {
	Text        string
	Mode        search.Mode
	FreshFiles  []filecontext.UploadedFileRef
	StoredFiles []filecontext.UploadedFileRef
}

// Decision is the routing outcome. Files is the file set a file-analysis
// submission should run against, and UseHistory reports whether the prior
// exchange history must be included as context (true when the files were
// reused from the conversation's stored context rather than freshly attached).
type Decision struct {
	Path       Path
	Files      []filecontext.UploadedFileRef
	UseHistory bool
}

// Route picks the execution path for a submission. Freshly attached files
// always win: they force file analysis regardless of the mode flag. Without
// fresh files, a query that mentions files by keyword reuses the
// conversation's stored file set, with history as context. Everything else
// follows the mode flag. Callers must reject submissions with neither text
// nor files before calling Route.
func Route(in Input) Decision {
	if len(in.FreshFiles) > 0 {
		return Decision{Path: PathFileAnalysis, Files: in.FreshFiles}
	}
	if len(in.StoredFiles) > 0 && mentionsFiles(in.Text) {
		return Decision{Path: PathFileAnalysis, Files: in.StoredFiles, UseHistory: true}
	}
	if in.Mode == search.ModeResearch {
		return Decision{Path: PathResearch}
	}
	return Decision{Path: PathSearch}
}

func mentionsFiles(text string) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		for _, kw := range fileKeywords {
			if w == kw {
				return true
			}
		}
	}
	return false
}
