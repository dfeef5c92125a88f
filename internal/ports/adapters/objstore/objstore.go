// Package objstore implements ports.ObjectStore against any S3-compatible
// service (R2, MinIO, AWS) over plain HTTP with SigV4 request signing.
package objstore

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clipforge/clipforge/internal/ports"
)

const (
	// Uploads above multipartThreshold go through the multipart API.
	multipartThreshold = 5 << 20
	multipartPartSize  = 10 << 20

	downloadProgressEvery = 50 << 20
)

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".json": "application/json",
	".srt":  "application/x-subrip",
}

type Client struct {
	endpoint  string // e.g. https://<account>.r2.cloudflarestorage.com
	bucket    string
	accessKey string
	secretKey string
	region    string
	publicURL string // base URL returned for uploaded objects

	client *http.Client
	log    *logrus.Entry
	now    func() time.Time
}

var _ ports.ObjectStore = (*Client)(nil)

type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	PublicURL string
}

func New(cfg Config, log *logrus.Entry) *Client {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &Client{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		bucket:    cfg.Bucket,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		region:    region,
		publicURL: publicURL,
		client:    &http.Client{Timeout: 30 * time.Minute},
		log:       log,
		now:       time.Now,
	}
}

func (c *Client) objectURL(key string, query url.Values) string {
	u := c.endpoint + "/" + c.bucket + "/" + key
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, key string, query url.Values, body io.Reader, contentLength int64, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.objectURL(key, query), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if contentLength > 0 {
		req.ContentLength = contentLength
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.sign(req, c.now())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, key, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s returned status %d: %s", method, key, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

// Download streams the object to localPath and returns the byte count.
// Progress is logged every 50MB so long transfers are visible in the logs.
func (c *Client) Download(ctx context.Context, key, localPath string) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, key, nil, nil, 0, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", localPath, err)
	}
	defer f.Close()

	pw := &progressWriter{
		dst:   f,
		total: resp.ContentLength,
		every: downloadProgressEvery,
		log:   c.log.WithField("key", key),
	}
	n, err := io.Copy(pw, resp.Body)
	if err != nil {
		os.Remove(localPath)
		return 0, fmt.Errorf("download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("flush %s: %w", localPath, err)
	}
	return n, nil
}

// Upload stores localPath under key and returns the public URL. Files above
// the multipart threshold are sent in parts.
func (c *Client) Upload(ctx context.Context, localPath, key string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	if info.Size() > multipartThreshold {
		if err := c.uploadMultipart(ctx, localPath, key, info.Size()); err != nil {
			return "", err
		}
	} else {
		if err := c.uploadSingle(ctx, localPath, key, info.Size()); err != nil {
			return "", err
		}
	}
	return c.publicURL + "/" + key, nil
}

func (c *Client) uploadSingle(ctx context.Context, localPath, key string, size int64) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	resp, err := c.do(ctx, http.MethodPut, key, nil, f, size, contentTypeFor(key))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

type completedPart struct {
	XMLName    xml.Name `xml:"Part"`
	PartNumber int      `xml:"PartNumber"`
	ETag       string   `xml:"ETag"`
}

type completeMultipartUpload struct {
	XMLName xml.Name        `xml:"CompleteMultipartUpload"`
	Parts   []completedPart `xml:"Part"`
}

type initiateMultipartResult struct {
	UploadID string `xml:"UploadId"`
}

func (c *Client) uploadMultipart(ctx context.Context, localPath, key string, size int64) error {
	resp, err := c.do(ctx, http.MethodPost, key, url.Values{"uploads": {""}}, nil, 0, contentTypeFor(key))
	if err != nil {
		return fmt.Errorf("initiate multipart upload: %w", err)
	}
	var initiate initiateMultipartResult
	err = xml.NewDecoder(resp.Body).Decode(&initiate)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("decode multipart initiation: %w", err)
	}
	if initiate.UploadID == "" {
		return fmt.Errorf("initiate multipart upload: empty upload id")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	var parts []completedPart
	for partNumber := 1; ; partNumber++ {
		chunk := io.LimitReader(f, multipartPartSize)
		partSize := int64(multipartPartSize)
		remaining := size - int64(partNumber-1)*multipartPartSize
		if remaining <= 0 {
			break
		}
		if remaining < partSize {
			partSize = remaining
		}

		query := url.Values{
			"partNumber": {strconv.Itoa(partNumber)},
			"uploadId":   {initiate.UploadID},
		}
		partResp, err := c.do(ctx, http.MethodPut, key, query, chunk, partSize, "")
		if err != nil {
			c.abortMultipart(ctx, key, initiate.UploadID)
			return fmt.Errorf("upload part %d: %w", partNumber, err)
		}
		etag := partResp.Header.Get("ETag")
		partResp.Body.Close()
		parts = append(parts, completedPart{PartNumber: partNumber, ETag: etag})

		c.log.WithFields(logrus.Fields{
			"key":  key,
			"part": partNumber,
		}).Debug("uploaded part")
	}

	body, err := xml.Marshal(completeMultipartUpload{Parts: parts})
	if err != nil {
		return fmt.Errorf("marshal multipart completion: %w", err)
	}
	doneResp, err := c.do(ctx, http.MethodPost, key, url.Values{"uploadId": {initiate.UploadID}},
		strings.NewReader(string(body)), int64(len(body)), "application/xml")
	if err != nil {
		c.abortMultipart(ctx, key, initiate.UploadID)
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	doneResp.Body.Close()
	return nil
}

func (c *Client) abortMultipart(ctx context.Context, key, uploadID string) {
	resp, err := c.do(ctx, http.MethodDelete, key, url.Values{"uploadId": {uploadID}}, nil, 0, "")
	if err != nil {
		c.log.WithField("key", key).WithError(err).Warn("failed to abort multipart upload")
		return
	}
	resp.Body.Close()
}

func contentTypeFor(key string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// progressWriter wraps the destination file and logs transfer progress at a
// fixed byte interval.
type progressWriter struct {
	dst     io.Writer
	total   int64
	every   int64
	written int64
	nextLog int64
	log     *logrus.Entry
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.dst.Write(b)
	p.written += int64(n)
	if p.nextLog == 0 {
		p.nextLog = p.every
	}
	for p.written >= p.nextLog {
		fields := logrus.Fields{"downloaded_mb": p.written >> 20}
		if p.total > 0 {
			fields["total_mb"] = p.total >> 20
		}
		p.log.WithFields(fields).Info("download progress")
		p.nextLog += p.every
	}
	return n, err
}
