package main

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// cloudinaryClient wraps the hosted media API: admin/search endpoints under
// apiBase (basic auth), the public delivery CDN under deliveryBase, and
// signed mutation endpoints for the admin flow.
type cloudinaryClient struct {
	cloudName    string
	apiKey       string
	apiSecret    string
	folder       string
	apiBase      string
	deliveryBase string
	httpClient   *http.Client
}

func newCloudinaryClient(cfg config) *cloudinaryClient {
	return &cloudinaryClient{
		cloudName:    cfg.cloudName,
		apiKey:       cfg.apiKey,
		apiSecret:    cfg.apiSecret,
		folder:       cfg.folder,
		apiBase:      "https://api.cloudinary.com/v1_1",
		deliveryBase: "https://res.cloudinary.com",
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// rawAsset is the library's wire shape for one resource.
type rawAsset struct {
	PublicID  string   `json:"public_id"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Format    string   `json:"format"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"created_at"`
}

func (a rawAsset) toRecord() imageRecord {
	format := strings.ToLower(strings.TrimSpace(a.Format))
	if format == "" {
		format = "jpg"
	}
	tags := make([]string, 0, len(a.Tags))
	for _, t := range a.Tags {
		if v := normalizeTag(t); v != "" {
			tags = append(tags, v)
		}
	}
	return imageRecord{
		ID:        a.PublicID,
		Width:     a.Width,
		Height:    a.Height,
		Format:    format,
		Tags:      tags,
		CreatedAt: a.CreatedAt,
	}
}

func (c *cloudinaryClient) SearchSorted(ctx context.Context, expression, direction string, max int, cursor string) (searchPage, error) {
	body := map[string]any{
		"expression":  expression,
		"sort_by":     []map[string]string{{"created_at": direction}},
		"max_results": max,
		"with_field":  []string{"tags"},
	}
	if cursor != "" {
		body["next_cursor"] = cursor
	}
	b, _ := json.Marshal(body)

	endpoint := fmt.Sprintf("%s/%s/resources/search", c.apiBase, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return searchPage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	var parsed struct {
		Resources  []rawAsset `json:"resources"`
		NextCursor string     `json:"next_cursor"`
	}
	if err := c.doJSON(req, &parsed); err != nil {
		return searchPage{}, err
	}

	records := make([]imageRecord, 0, len(parsed.Resources))
	for _, a := range parsed.Resources {
		records = append(records, a.toRecord())
	}
	return searchPage{records: records, nextCursor: parsed.NextCursor}, nil
}

func (c *cloudinaryClient) ListByPrefix(ctx context.Context, max int) ([]imageRecord, error) {
	q := url.Values{}
	q.Set("prefix", c.folder+"/")
	q.Set("max_results", fmt.Sprintf("%d", max))
	q.Set("tags", "true")
	q.Set("type", "upload")

	endpoint := fmt.Sprintf("%s/%s/resources/image/upload?%s", c.apiBase, c.cloudName, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	var parsed struct {
		Resources []rawAsset `json:"resources"`
	}
	if err := c.doJSON(req, &parsed); err != nil {
		return nil, err
	}

	records := make([]imageRecord, 0, len(parsed.Resources))
	for _, a := range parsed.Resources {
		records = append(records, a.toRecord())
	}
	return records, nil
}

func (c *cloudinaryClient) Resource(ctx context.Context, id string) (imageRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/resources/image/upload/%s", c.apiBase, c.cloudName, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return imageRecord{}, err
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	var parsed rawAsset
	if err := c.doJSON(req, &parsed); err != nil {
		return imageRecord{}, err
	}
	return parsed.toRecord(), nil
}

// FetchPreview downloads the small blurred rendition used as the gallery
// placeholder. The transform mirrors what the UI would otherwise request
// per image: jpg output, heavy blur, half quality.
func (c *cloudinaryClient) FetchPreview(ctx context.Context, id, format string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s/image/upload/f_jpg,e_blur:1000,q_50/%s.%s", c.deliveryBase, c.cloudName, id, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("preview fetch status=%d for %s", resp.StatusCode, id)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty preview body for %s", id)
	}
	return body, nil
}

func (c *cloudinaryClient) Upload(ctx context.Context, file io.Reader, filename string, tags []string) (imageRecord, error) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	params := map[string]string{
		"folder":    c.folder,
		"timestamp": timestamp,
	}
	if len(tags) > 0 {
		params["tags"] = strings.Join(tags, ",")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return imageRecord{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return imageRecord{}, err
	}
	for k, v := range params {
		if err := writer.WriteField(k, v); err != nil {
			return imageRecord{}, err
		}
	}
	if err := writer.WriteField("api_key", c.apiKey); err != nil {
		return imageRecord{}, err
	}
	if err := writer.WriteField("signature", c.sign(params)); err != nil {
		return imageRecord{}, err
	}
	if err := writer.Close(); err != nil {
		return imageRecord{}, err
	}

	endpoint := fmt.Sprintf("%s/%s/image/upload", c.apiBase, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return imageRecord{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var parsed rawAsset
	if err := c.doJSON(req, &parsed); err != nil {
		return imageRecord{}, err
	}
	return parsed.toRecord(), nil
}

func (c *cloudinaryClient) Destroy(ctx context.Context, id string) error {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	params := map[string]string{
		"public_id": id,
		"timestamp": timestamp,
	}

	var parsed struct {
		Result string `json:"result"`
	}
	if err := c.postSignedForm(ctx, "image/destroy", params, &parsed); err != nil {
		return err
	}
	if parsed.Result != "ok" {
		return fmt.Errorf("destroy %s: result=%q", id, parsed.Result)
	}
	return nil
}

func (c *cloudinaryClient) AddTag(ctx context.Context, id, tag string) ([]string, error) {
	return c.mutateTag(ctx, "add", id, tag)
}

func (c *cloudinaryClient) RemoveTag(ctx context.Context, id, tag string) ([]string, error) {
	return c.mutateTag(ctx, "remove", id, tag)
}

func (c *cloudinaryClient) mutateTag(ctx context.Context, command, id, tag string) ([]string, error) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	params := map[string]string{
		"command":    command,
		"public_ids": id,
		"tag":        tag,
		"timestamp":  timestamp,
	}

	var parsed struct {
		PublicIDs []string `json:"public_ids"`
	}
	if err := c.postSignedForm(ctx, "image/tags", params, &parsed); err != nil {
		return nil, err
	}

	updated, err := c.Resource(ctx, id)
	if err != nil {
		return nil, err
	}
	return updated.Tags, nil
}

func (c *cloudinaryClient) postSignedForm(ctx context.Context, path string, params map[string]string, out interface{}) error {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("api_key", c.apiKey)
	form.Set("signature", c.sign(params))

	endpoint := fmt.Sprintf("%s/%s/%s", c.apiBase, c.cloudName, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doJSON(req, out)
}

// sign produces the request signature: params sorted by name, joined as a
// query string, secret appended, sha1 hex digest.
func (c *cloudinaryClient) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}

func (c *cloudinaryClient) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("media api status=%d for %s %s", resp.StatusCode, req.Method, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
