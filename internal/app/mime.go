package app

import (
	"log"
	"mime"
)

func init() {
	ensureMimeType(".jar", "application/java-archive")
	ensureMimeType(".pom", "application/xml")
	ensureMimeType(".module", "application/json")
	ensureMimeType(".sha1", "text/plain; charset=utf-8")
	ensureMimeType(".md5", "text/plain; charset=utf-8")
	ensureMimeType(".asc", "application/pgp-signature")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
