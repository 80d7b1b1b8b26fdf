package server

// Options carries everything the server needs, resolved at startup. There
// is no ambient configuration; the CLI builds one of these and hands it to
// Run.
type Options struct {
	RootDir      string
	DataDir      string
	Bind         string
	Port         int
	Username     string
	PasswordHash string
	LogLevel     string
	HTTPS        bool
	CertFile     string
	KeyFile      string
	Version      string
}

// Entry is one directory child as the browser sees it. Path is always
// slash-separated, relative to the served root.
type Entry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	IsVideo     bool   `json:"isVideo"`
	Path        string `json:"path"`
}
