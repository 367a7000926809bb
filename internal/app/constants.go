package app

const (
	Name           = "picodbg"
	SourceURL      = "https://git.skobk.in/skobkin/picodbg"
	ConfigFilename = "config.json"
	DBFilename     = "grants.db"
	LogFilename    = "picodbg.log"
)
