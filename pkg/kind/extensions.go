package kind

// candidate 是某个扩展名可能对应的一种类型
// family 是用于嗅探校验的 MIME 前缀 (例如 "video/", "text/")
type candidate struct {
	kind   ObjectKind
	family []string
}

// extensionTable: 扩展名 -> 候选类型列表
// 列表顺序就是冲突时的优先级 (越靠前越优先)
var extensionTable = map[string][]candidate{
	// --- 冲突扩展名 ---
	// .ts: MPEG 传输流 vs TypeScript
	"ts":  {{Video, []string{"video/"}}, {Code, []string{"text/", "application/javascript"}}},
	"mts": {{Video, []string{"video/"}}, {Code, []string{"text/"}}},
	// 同一容器格式既可能是音频也可能是视频
	"ogg":  {{Video, []string{"video/"}}, {Audio, []string{"audio/"}}},
	"webm": {{Video, []string{"video/"}}, {Audio, []string{"audio/"}}},
	"3gp":  {{Video, []string{"video/"}}, {Audio, []string{"audio/"}}},
	"mp4":  {{Video, []string{"video/"}}, {Audio, []string{"audio/"}}},
	// .key: Keynote 文档 (zip) vs 私钥 (文本)
	"key": {{Document, []string{"application/zip", "application/x-iwork"}}, {Key, []string{"text/"}}},
	// .db: sqlite vs 其它
	"db": {{Database, []string{"application/vnd.sqlite3", "application/x-sqlite3"}}},

	// --- 无冲突扩展名 ---
	"txt": {{Text, nil}},
	"md":  {{Text, nil}},
	"csv": {{Text, nil}},
	"log": {{Text, nil}},

	"pdf":  {{Document, nil}},
	"doc":  {{Document, nil}},
	"docx": {{Document, nil}},
	"xlsx": {{Document, nil}},
	"pptx": {{Document, nil}},
	"odt":  {{Document, nil}},

	"jpg":  {{Image, nil}},
	"jpeg": {{Image, nil}},
	"png":  {{Image, nil}},
	"gif":  {{Image, nil}},
	"webp": {{Image, nil}},
	"heic": {{Image, nil}},
	"bmp":  {{Image, nil}},
	"svg":  {{Image, nil}},
	"tiff": {{Image, nil}},

	"mp3":  {{Audio, nil}},
	"flac": {{Audio, nil}},
	"wav":  {{Audio, nil}},
	"aac":  {{Audio, nil}},
	"m4a":  {{Audio, nil}},
	"opus": {{Audio, nil}},

	"mkv": {{Video, nil}},
	"mov": {{Video, nil}},
	"avi": {{Video, nil}},
	"m4v": {{Video, nil}},
	"wmv": {{Video, nil}},

	"zip": {{Archive, nil}},
	"tar": {{Archive, nil}},
	"gz":  {{Archive, nil}},
	"7z":  {{Archive, nil}},
	"rar": {{Archive, nil}},
	"zst": {{Archive, nil}},

	"exe":      {{Executable, nil}},
	"msi":      {{Executable, nil}},
	"appimage": {{Executable, nil}},

	"lnk": {{Alias, nil}},
	"gpg": {{Encrypted, nil}},
	"age": {{Encrypted, nil}},
	"pem": {{Key, nil}},
	"url": {{Link, nil}},

	"html": {{WebPageArchive, nil}},
	"mht":  {{WebPageArchive, nil}},

	"ttf":   {{Font, nil}},
	"otf":   {{Font, nil}},
	"woff":  {{Font, nil}},
	"woff2": {{Font, nil}},

	"obj": {{Mesh, nil}},
	"stl": {{Mesh, nil}},
	"fbx": {{Mesh, nil}},

	"go":   {{Code, nil}},
	"rs":   {{Code, nil}},
	"py":   {{Code, nil}},
	"js":   {{Code, nil}},
	"c":    {{Code, nil}},
	"h":    {{Code, nil}},
	"java": {{Code, nil}},
	"sh":   {{Code, nil}},

	"sqlite": {{Database, nil}},

	"epub": {{Book, nil}},
	"mobi": {{Book, nil}},

	"yaml": {{Config, nil}},
	"yml":  {{Config, nil}},
	"toml": {{Config, nil}},
	"json": {{Config, nil}},
	"ini":  {{Config, nil}},
}
