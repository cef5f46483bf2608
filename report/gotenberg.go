package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pricebook/pricebook/web"
)

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts raw HTML into a PDF document using Gotenberg.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	if err := writer.WriteField("preferCssPageSize", "true"); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("gotenberg response %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return io.ReadAll(resp.Body)
}

// HTMLConverter is the subset of Client used by GotenbergRenderer.
type HTMLConverter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// GotenbergRenderer prints the laid out pages as HTML and converts them remotely.
type GotenbergRenderer struct {
	tpl    *template.Template
	client HTMLConverter
}

// NewGotenbergRenderer parses the catalog print template.
func NewGotenbergRenderer(client HTMLConverter) (*GotenbergRenderer, error) {
	if client == nil {
		return nil, fmt.Errorf("report: gotenberg client required")
	}
	funcMap := template.FuncMap{
		"isTitle":  func(k ItemKind) bool { return k == ItemTitle },
		"isHead":   func(k ItemKind) bool { return k == ItemHeading },
		"isHeader": func(k ItemKind) bool { return k == ItemTableHeader },
		"isRow":    func(k ItemKind) bool { return k == ItemRow },
		"isFooter": func(k ItemKind) bool { return k == ItemFooter },
		"last":     func(i int, cells []string) bool { return i == len(cells)-1 },
	}
	tpl, err := template.New("catalog.html").Funcs(funcMap).ParseFS(web.Templates, "templates/reports/catalog.html")
	if err != nil {
		return nil, err
	}
	return &GotenbergRenderer{tpl: tpl, client: client}, nil
}

// ContentType implements Renderer.
func (r *GotenbergRenderer) ContentType() string { return "application/pdf" }

// Render implements Renderer.
func (r *GotenbergRenderer) Render(ctx context.Context, doc *Document, w io.Writer) error {
	html, err := r.HTML(doc)
	if err != nil {
		return err
	}
	pdf, err := r.client.RenderHTML(ctx, html)
	if err != nil {
		return err
	}
	_, err = w.Write(pdf)
	return err
}

// HTML returns the print markup of doc.
func (r *GotenbergRenderer) HTML(doc *Document) (string, error) {
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
