// Package scan implements Stage 0 of the pipeline driver: walking a
// repository directory, inferring language and skipping non-candidate
// files, counting code lines, and extracting a best-effort dependency
// list per file.
//
// The extension table and skip set are carried forward verbatim (in
// spirit) from the Python original's get_language_from_extension and
// should_skip_file; extract_dependencies is reimplemented with Go's
// regexp package, mirroring the original's own regex approach.
package scan

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var languageByExtension = map[string]string{
	"py": "python", "js": "javascript", "ts": "typescript", "tsx": "typescript",
	"jsx": "javascript", "java": "java", "cpp": "cpp", "c": "c", "cs": "csharp",
	"php": "php", "rb": "ruby", "go": "go", "rs": "rust", "kt": "kotlin",
	"swift": "swift", "md": "markdown", "txt": "text", "json": "json",
	"xml": "xml", "html": "html", "css": "css", "yaml": "yaml", "yml": "yaml",
	"sh": "shell", "sql": "sql",
}

var skipExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true, "svg": true, "ico": true, "webp": true,
	"zip": true, "rar": true, "7z": true, "tar": true, "gz": true, "bz2": true, "xz": true,
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true, "ppt": true, "pptx": true,
	"mp3": true, "mp4": true, "avi": true, "mov": true, "wmv": true, "flv": true, "mkv": true,
	"exe": true, "dll": true, "so": true, "dylib": true, "bin": true,
	"woff": true, "woff2": true, "ttf": true, "eot": true,
	"lock": true, "log": true, "tmp": true, "cache": true,
}

// Language infers a language name from a file path's extension,
// returning "" for unrecognized extensions.
func Language(path string) string {
	ext := extension(path)
	return languageByExtension[ext]
}

// ShouldSkip reports whether path is one of the Glossary's candidate
// skip extensions (binaries, archives, media, office docs, etc).
func ShouldSkip(path string) bool {
	return skipExtensions[extension(path)]
}

func extension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// CountCodeLines counts non-blank lines.
func CountCodeLines(content string) int {
	count := 0
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count
}

var (
	pyImportRe  = regexp.MustCompile(`(?m)^(?:from\s+(\S+)\s+)?import\s+([^\n#]+)`)
	jsImportRe  = regexp.MustCompile(`(?:import.*?from\s+['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]|require\s*\(\s*['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]\s*\))`)
	goImportRe  = regexp.MustCompile(`"([a-zA-Z0-9_./\-]+)"`)
	javaImpRe   = regexp.MustCompile(`(?m)^import\s+([\w.]+);`)
)

// ExtractDependencies returns a best-effort, deduplicated list of
// imported module/package names for the given language.
func ExtractDependencies(content, language string) []string {
	seen := map[string]struct{}{}
	var deps []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || strings.HasPrefix(name, ".") {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		deps = append(deps, name)
	}

	switch language {
	case "python":
		for _, m := range pyImportRe.FindAllStringSubmatch(content, -1) {
			if m[1] != "" {
				add(strings.SplitN(m[1], ".", 2)[0])
				continue
			}
			for _, part := range strings.FieldsFunc(m[2], func(r rune) bool { return r == ',' || r == ' ' }) {
				add(strings.SplitN(strings.TrimSpace(part), ".", 2)[0])
			}
		}
	case "javascript", "typescript":
		for _, m := range jsImportRe.FindAllStringSubmatch(content, -1) {
			mod := m[1]
			if mod == "" {
				mod = m[2]
			}
			if mod != "" {
				add(strings.SplitN(mod, "/", 2)[0])
			}
		}
	case "go":
		inBlock := false
		for _, line := range strings.Split(content, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "import (") {
				inBlock = true
				continue
			}
			if inBlock && trimmed == ")" {
				inBlock = false
				continue
			}
			if inBlock || strings.HasPrefix(trimmed, "import ") {
				if m := goImportRe.FindStringSubmatch(trimmed); m != nil {
					add(m[1])
				}
			}
		}
	case "java":
		for _, m := range javaImpRe.FindAllStringSubmatch(content, -1) {
			add(m[1])
		}
	}
	return deps
}

// CandidateFile is one file discovered by Walk.
type CandidateFile struct {
	RelPath  string
	Language string
	Size     int64
}

// Walk lists candidate files under root, skipping directories that
// start with "." and files with a skip extension.
func Walk(root string) ([]CandidateFile, error) {
	var files []CandidateFile
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if info.IsDir() {
			if rel != "." && strings.HasPrefix(filepath.Base(rel), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if ShouldSkip(rel) {
			return nil
		}
		files = append(files, CandidateFile{
			RelPath:  filepath.ToSlash(rel),
			Language: Language(rel),
			Size:     info.Size(),
		})
		return nil
	})
	return files, err
}

// ModuleCount implements the chosen module_count heuristic: the number
// of distinct top-level directories among the scanned file paths.
func ModuleCount(paths []string) int {
	top := map[string]struct{}{}
	for _, p := range paths {
		if idx := strings.Index(p, "/"); idx >= 0 {
			top[p[:idx]] = struct{}{}
		}
	}
	return len(top)
}
