package filter

var mediaTypes = map[string]string{
	"txt":  "text/plain",
	"md":   "text/markdown",
	"json": "application/json",
	"yaml": "application/x-yaml",
	"yml":  "application/x-yaml",
	"csv":  "text/csv",
	"html": "text/html",
	"htm":  "text/html",
	"xml":  "application/xml",
	"py":   "text/x-python",
	"js":   "application/javascript",
	"css":  "text/css",
	"java": "text/x-java-source",
	"c":    "text/x-csrc",
	"cpp":  "text/x-c++src",
	"h":    "text/x-c++hdr",
	"php":  "application/x-php",
	"rb":   "application/x-ruby",
	"pl":   "application/x-perl",
	"sh":   "application/x-sh",
	"sql":  "application/sql",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"zip":  "application/zip",
	"rar":  "application/x-rar-compressed",
}

var textExtensions = map[string]bool{
	"txt": true, "md": true, "json": true, "yaml": true, "yml": true, "csv": true,
	"html": true, "htm": true, "xml": true, "py": true, "js": true, "css": true,
	"java": true, "c": true, "cpp": true, "h": true, "php": true, "rb": true,
	"pl": true, "sh": true, "sql": true,
}

// MediaType maps a filename to its MIME type, defaulting to application/octet-stream
func MediaType(filename string) string {
	if mt, ok := mediaTypes[Extension(filename)]; ok {
		return mt
	}
	return "application/octet-stream"
}

// IsText reports whether the file holds text that can carry front-matter
func IsText(filename string) bool {
	return textExtensions[Extension(filename)]
}
