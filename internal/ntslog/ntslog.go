// Package ntslog sets up the process-wide logger. It follows the
// teacher's approach in plandex-cli's main.go: a single rotating log
// file via lumberjack, standard library log flags, no structured
// logging framework.
package ntslog

import (
	"log"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Init points the standard logger at a rotating file under logDir.
// Safe to call once at process start; tests may skip it and rely on
// the default stderr logger.
func Init(logDir string) {
	logger := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "ntsfs.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	log.SetOutput(logger)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
}

// ForSession returns a logger that prefixes every line with the
// session id, so a shared log file stays attributable when several
// sessions are active in one process.
func ForSession(sid string) *log.Logger {
	return log.New(log.Writer(), "[sid:"+sid+"] ", log.LstdFlags|log.Lmicroseconds)
}
