package harness

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

const (
	ConnectionKeepAlive = "keep-alive"
	ConnectionClose     = "close"

	defaultContentType = "text/plain"
)

// RequestConfig describes the HTTP/1.1 request written on every connection.
type RequestConfig struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
	// Host overrides the Host header, which defaults to the target address.
	Host        string            `yaml:"host"`
	Connection  string            `yaml:"connection"`
	ContentType string            `yaml:"content_type"`
	Headers     map[string]string `yaml:"headers"`
	Body        string            `yaml:"body"`

	// BodyFile and RawFile are read by Load into Body and Raw.
	BodyFile string `yaml:"body_file"`
	RawFile  string `yaml:"raw_file"`

	// Raw, when set, is sent verbatim and every other field is ignored.
	Raw []byte `yaml:"-"`
}

func DefaultRequestConfig() RequestConfig {
	return RequestConfig{
		Method:     "GET",
		Path:       "/",
		Connection: ConnectionKeepAlive,
	}
}

// Load reads BodyFile and RawFile from fs, if set.
func (c *RequestConfig) Load(fs afero.Fs) error {
	if c.BodyFile != "" {
		if c.Body != "" {
			return errors.New("request body and body file are mutually exclusive")
		}
		b, err := afero.ReadFile(fs, c.BodyFile)
		if err != nil {
			return errors.Wrap(err, "reading request body file")
		}
		c.Body = string(b)
	}
	if c.RawFile != "" {
		b, err := afero.ReadFile(fs, c.RawFile)
		if err != nil {
			return errors.Wrap(err, "reading raw request file")
		}
		if len(b) == 0 {
			return fmt.Errorf("raw request file %s is empty", c.RawFile)
		}
		c.Raw = b
	}
	return nil
}

func (c *RequestConfig) Validate() error {
	if len(c.Raw) > 0 {
		return nil
	}
	var errs error
	if c.Method == "" || strings.ContainsAny(c.Method, " \r\n") {
		errs = multierror.Append(errs, fmt.Errorf("invalid request method %q", c.Method))
	}
	if c.Path == "" || strings.ContainsAny(c.Path, " \r\n") {
		errs = multierror.Append(errs, fmt.Errorf("invalid request path %q", c.Path))
	}
	for _, v := range []string{c.Host, c.Connection, c.ContentType} {
		if strings.ContainsAny(v, "\r\n") {
			errs = multierror.Append(errs, fmt.Errorf("invalid header value %q", v))
		}
	}
	for k, v := range c.Headers {
		if k == "" || strings.ContainsAny(k, " :\r\n") || strings.ContainsAny(v, "\r\n") {
			errs = multierror.Append(errs, fmt.Errorf("invalid header %q: %q", k, v))
		}
	}
	return errs
}

// Build renders the request payload for target.
func (c RequestConfig) Build(target Target) []byte {
	if len(c.Raw) > 0 {
		return c.Raw
	}

	host := c.Host
	if host == "" {
		host = target.String()
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", c.Method, c.Path)
	writeHeader(&b, "Host", host)
	if c.Connection != "" {
		writeHeader(&b, "Connection", c.Connection)
	}

	keys := lo.Keys(c.Headers)
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&b, k, c.Headers[k])
	}

	if c.Body != "" {
		contentType := c.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}
		writeHeader(&b, "Content-Type", contentType)
		writeHeader(&b, "Content-Length", strconv.Itoa(len(c.Body)))
	}
	b.WriteString("\r\n")
	b.WriteString(c.Body)
	return b.Bytes()
}

func writeHeader(b *bytes.Buffer, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}
