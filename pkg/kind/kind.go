package kind

// ObjectKind 是内容的粗粒度分类
// 数值会被持久化 (objects.kind)，只能在末尾追加，不能重排
type ObjectKind int

const (
	Unknown ObjectKind = iota
	Document
	Folder
	Text
	Package
	Image
	Audio
	Video
	Archive
	Executable
	Alias
	Encrypted
	Key
	Link
	WebPageArchive
	Widget
	Album
	Collection
	Font
	Mesh
	Code
	Database
	Book
	Config
	Dotfile
	Screenshot
	Label
)

var kindNames = [...]string{
	Unknown:        "Unknown",
	Document:       "Document",
	Folder:         "Folder",
	Text:           "Text",
	Package:        "Package",
	Image:          "Image",
	Audio:          "Audio",
	Video:          "Video",
	Archive:        "Archive",
	Executable:     "Executable",
	Alias:          "Alias",
	Encrypted:      "Encrypted",
	Key:            "Key",
	Link:           "Link",
	WebPageArchive: "WebPageArchive",
	Widget:         "Widget",
	Album:          "Album",
	Collection:     "Collection",
	Font:           "Font",
	Mesh:           "Mesh",
	Code:           "Code",
	Database:       "Database",
	Book:           "Book",
	Config:         "Config",
	Dotfile:        "Dotfile",
	Screenshot:     "Screenshot",
	Label:          "Label",
}

func (k ObjectKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}
