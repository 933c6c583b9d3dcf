package server

import (
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	uaParser "github.com/mssola/user_agent"
	"github.com/rs/zerolog"

	"github.com/example/storagegatebot/config"
	"github.com/example/storagegatebot/core"
	"github.com/example/storagegatebot/logdb"
)

// Start serves share links. The bytes live with the chat transport, so a
// hit resolves the slug to a file record and redirects to the transport's
// direct URL, logging the download and notifying the owner if asked.
func Start(cfg *config.Config, files *core.Files, logs *logdb.DB,
	fileURL func(fileID string) (string, error), notify func(int64, string), log zerolog.Logger) error {

	handler := func(w http.ResponseWriter, r *http.Request) {
		slug := path.Base(r.URL.Path)
		if slug == "" || slug == "." || slug == "/" {
			http.NotFound(w, r)
			return
		}

		f, err := files.BySlug(r.Context(), slug)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		target, err := fileURL(f.FileID)
		if err != nil {
			log.Error().Err(err).Str("slug", slug).Msg("resolve file url")
			http.Error(w, "temporarily unavailable", http.StatusBadGateway)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)

		ua := uaParser.New(r.UserAgent())
		osInfo := ua.OSInfo()
		browserName, browserVer := ua.Browser()

		ip := r.Header.Get("X-Forwarded-For")
		if ip == "" {
			ip, _, _ = net.SplitHostPort(r.RemoteAddr)
		} else {
			ip = strings.TrimSpace(strings.Split(ip, ",")[0])
		}

		if err := logs.Add(f.ID, &logdb.Entry{
			IP:          ip,
			Platform:    ua.Platform(),
			Model:       ua.Model(),
			OSName:      osInfo.Name,
			OSVersion:   osInfo.Version,
			BrowserName: browserName,
			BrowserVer:  browserVer,
		}); err != nil {
			log.Warn().Err(err).Int64("file", f.ID).Msg("download log write")
		}

		if f.Notify && notify != nil {
			notify(f.AccountID, fmt.Sprintf("File %s (%s) was downloaded from %s (%s %s)",
				f.Name, humanize.Bytes(uint64(f.Size)), ip, osInfo.Name, browserName))
		}
	}
	http.HandleFunc("/", handler)

	addr := cfg.HTTPAddress
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		log.Info().Str("addr", addr).Msg("serving HTTPS")
		return http.ListenAndServeTLS(addr, cfg.TLSCert, cfg.TLSKey, nil)
	}
	log.Info().Str("addr", addr).Msg("serving HTTP")
	return http.ListenAndServe(addr, nil)
}

// ShareLink renders the public link for a slug.
func ShareLink(cfg *config.Config, slug string) string {
	return strings.TrimRight(cfg.Domain, "/") + "/" + slug
}
