package nginx

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"text/template"

	"github.com/milonpatowary/ubuntu-lemp-react-laravel/internal/php"
)

//go:embed templates/site.conf.tmpl
var templateFS embed.FS

var siteTemplate = template.Must(template.ParseFS(templateFS, "templates/site.conf.tmpl"))

// Site holds the values interpolated into the server block.
// They are trusted input: nothing is escaped.
type Site struct {
	Domain       string
	FrontendRoot string
	BackendRoot  string
	PHPVersion   string
}

// FPMSocket is used by the template.
func (s Site) FPMSocket() string { return php.FPMSocket(s.PHPVersion) }

// Render produces the server block for s.
func Render(s Site) ([]byte, error) {
	switch {
	case s.Domain == "":
		return nil, errors.New("render site: domain is empty")
	case s.PHPVersion == "":
		return nil, errors.New("render site: PHP version is unknown")
	case s.FrontendRoot == "" || s.BackendRoot == "":
		return nil, errors.New("render site: document roots are required")
	}
	var buf bytes.Buffer
	if err := siteTemplate.ExecuteTemplate(&buf, "site.conf.tmpl", s); err != nil {
		return nil, fmt.Errorf("render site: %w", err)
	}
	return buf.Bytes(), nil
}
