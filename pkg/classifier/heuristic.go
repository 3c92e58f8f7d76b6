package classifier

import (
	"path/filepath"
	"strings"
)

// Category labels assigned by the heuristic tier. The LLM tier may refine
// these or produce its own free-text label.
const (
	CategoryImages        = "Images"
	CategoryVideos        = "Videos"
	CategoryAudio         = "Audio"
	CategoryDocuments     = "Documents"
	CategorySpreadsheets  = "Spreadsheets"
	CategoryPresentations = "Presentations"
	CategoryArchives      = "Archives"
	CategoryCode          = "Code"
	CategoryConfiguration = "Configuration"
	CategoryOther         = "Other"
)

var (
	imageExtensions        = extensionSet("jpg", "jpeg", "png", "gif", "bmp", "svg", "webp")
	videoExtensions        = extensionSet("mp4", "avi", "mov", "wmv", "flv", "webm", "mkv")
	audioExtensions        = extensionSet("mp3", "wav", "flac", "aac", "ogg", "wma")
	documentExtensions     = extensionSet("pdf", "doc", "docx", "txt", "rtf", "odt")
	spreadsheetExtensions  = extensionSet("xls", "xlsx", "csv", "ods")
	presentationExtensions = extensionSet("ppt", "pptx", "odp")
	archiveExtensions      = extensionSet("zip", "rar", "7z", "tar", "gz")
	codeExtensions         = extensionSet("js", "ts", "py", "java", "cpp", "c", "html", "css", "php", "rb", "go", "rs")
	configExtensions       = extensionSet("json", "xml", "yaml", "yml", "toml", "ini", "conf")
)

func extensionSet(exts ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[ext] = struct{}{}
	}
	return set
}

func extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// DetectKind maps MIME type and file extension to a category. It is a pure
// deterministic mapping and never depends on the LLM tier having run.
func DetectKind(mimeType, name string) string {
	ext := extension(name)

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImages
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideos
	case strings.HasPrefix(mimeType, "audio/"):
		return CategoryAudio
	}

	if _, ok := imageExtensions[ext]; ok {
		return CategoryImages
	}
	if _, ok := videoExtensions[ext]; ok {
		return CategoryVideos
	}
	if _, ok := audioExtensions[ext]; ok {
		return CategoryAudio
	}
	if strings.Contains(mimeType, "pdf") {
		return CategoryDocuments
	}
	if _, ok := documentExtensions[ext]; ok {
		return CategoryDocuments
	}
	if _, ok := spreadsheetExtensions[ext]; ok {
		return CategorySpreadsheets
	}
	if _, ok := presentationExtensions[ext]; ok {
		return CategoryPresentations
	}
	if strings.Contains(mimeType, "zip") {
		return CategoryArchives
	}
	if _, ok := archiveExtensions[ext]; ok {
		return CategoryArchives
	}
	if _, ok := codeExtensions[ext]; ok {
		return CategoryCode
	}
	if _, ok := configExtensions[ext]; ok {
		return CategoryConfiguration
	}
	return CategoryOther
}
