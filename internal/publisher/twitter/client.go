// Package twitter is the X/Twitter destination client: chunked video
// upload through the v1.1 media endpoint and post creation through v2.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"video_reposter/internal/domain"
	"video_reposter/internal/publisher"
	"video_reposter/internal/retry"
)

const (
	DefaultUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	DefaultAPIURL    = "https://api.twitter.com"

	textLimit     = 280
	maxVideoBytes = 512 << 20
	chunkSize     = 5 << 20
	maxStatusPoll = 60
	// reconcilePages bounds how far back through the timeline FindPost pages.
	reconcilePages = 5
)

type Config struct {
	UploadURL string
	APIURL    string
	ChunkSize int
}

// Client posts on behalf of one account. The http.Client it is given must
// already sign requests for that account.
type Client struct {
	http      *http.Client
	uploadURL string
	apiURL    string
	chunkSize int
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	logger    *slog.Logger

	userMu sync.Mutex
	userID string
}

func New(httpClient *http.Client, cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		http:      httpClient,
		uploadURL: cfg.UploadURL,
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		chunkSize: cfg.ChunkSize,
		sleep:     retry.Sleep,
		now:       time.Now,
		logger:    logger,
	}
	if c.uploadURL == "" {
		c.uploadURL = DefaultUploadURL
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.chunkSize <= 0 {
		c.chunkSize = chunkSize
	}
	return c
}

func (c *Client) Limits() publisher.Limits {
	return publisher.Limits{TextLength: textLimit, MaxMediaBytes: maxVideoBytes}
}

func (c *Client) Post(ctx context.Context, payload *domain.MediaPayload, text string) (string, error) {
	mediaID, err := c.upload(ctx, payload)
	if err != nil {
		return "", err
	}
	return c.createPost(ctx, text, mediaID)
}

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type mediaResponse struct {
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *processingInfo `json:"processing_info"`
}

func (c *Client) upload(ctx context.Context, payload *domain.MediaPayload) (string, error) {
	mimeType := payload.MimeKind
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	var started mediaResponse
	err := c.postForm(ctx, "upload init", url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.FormatInt(payload.SizeBytes, 10)},
		"media_type":     {mimeType},
		"media_category": {"tweet_video"},
	}, &started)
	if err != nil {
		return "", err
	}
	if started.MediaIDString == "" {
		return "", domain.NewError(domain.KindDestinationUnavailable, "upload init", fmt.Errorf("no media id returned"))
	}
	mediaID := started.MediaIDString

	if err := c.appendChunks(ctx, mediaID, payload.Path); err != nil {
		return "", err
	}

	var fin mediaResponse
	err = c.postForm(ctx, "upload finalize", url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	}, &fin)
	if err != nil {
		return "", err
	}

	if err := c.waitProcessing(ctx, mediaID, fin.ProcessingInfo); err != nil {
		return "", err
	}
	return mediaID, nil
}

func (c *Client) appendChunks(ctx context.Context, mediaID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	buf := make([]byte, c.chunkSize)
	for segment := 0; ; segment++ {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			if aerr := c.appendChunk(ctx, mediaID, segment, buf[:n]); aerr != nil {
				return aerr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read media: %w", err)
		}
	}
}

func (c *Client) appendChunk(ctx context.Context, mediaID string, segment int, chunk []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("command", "APPEND")
	_ = w.WriteField("media_id", mediaID)
	_ = w.WriteField("segment_index", strconv.Itoa(segment))
	part, err := w.CreateFormFile("media", "chunk")
	if err != nil {
		return fmt.Errorf("build append request: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return fmt.Errorf("build append request: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("build append request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req, "upload append", nil, false)
}

func (c *Client) waitProcessing(ctx context.Context, mediaID string, info *processingInfo) error {
	for poll := 0; info != nil; poll++ {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			msg := "processing failed"
			if info.Error != nil && info.Error.Message != "" {
				msg = info.Error.Message
			}
			return domain.NewError(domain.KindDestinationRejected, "upload status", fmt.Errorf("%s", msg))
		}
		if poll >= maxStatusPoll {
			return domain.NewError(domain.KindDestinationUnavailable, "upload status", fmt.Errorf("media %s still processing", mediaID))
		}

		wait := time.Duration(info.CheckAfterSecs) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		c.logger.Debug("media processing", "media_id", mediaID, "state", info.State, "check_after", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}

		q := url.Values{"command": {"STATUS"}, "media_id": {mediaID}}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uploadURL+"?"+q.Encode(), nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		var status mediaResponse
		if err := c.do(req, "upload status", &status, false); err != nil {
			return err
		}
		info = status.ProcessingInfo
	}
	return nil
}

type createRequest struct {
	Text  string `json:"text"`
	Media struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media"`
}

type tweet struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

// hasMedia reports whether the post carries the uploaded media. Media keys
// are "<type>_<media id>".
func (t tweet) hasMedia(mediaID string) bool {
	for _, k := range t.Attachments.MediaKeys {
		if strings.HasSuffix(k, "_"+mediaID) {
			return true
		}
	}
	return false
}

func (c *Client) createPost(ctx context.Context, text, mediaID string) (string, error) {
	var body createRequest
	body.Text = text
	body.Media.MediaIDs = []string{mediaID}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal post: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/2/tweets", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Data tweet `json:"data"`
	}
	if err := c.do(req, "create post", &resp, true); err != nil {
		var de *domain.Error
		if errors.As(err, &de) && de.Uncertain {
			de.Ref = mediaID
		}
		return "", err
	}
	if resp.Data.ID == "" {
		return "", &domain.Error{
			Kind:      domain.KindDestinationUnavailable,
			Op:        "create post",
			Err:       fmt.Errorf("response carries no post id"),
			Uncertain: true,
			Ref:       mediaID,
		}
	}
	return resp.Data.ID, nil
}

// FindPost looks through the account's posts since the given time for the
// one ref describes. A post is matched by its uploaded media when the media
// id is known, and by its text otherwise. Finding nothing within the pages
// it is allowed to read is reported as an error, not as absence.
func (c *Client) FindPost(ctx context.Context, ref publisher.PostRef, since time.Time) (string, bool, error) {
	want := normalize(ref.Text)
	if ref.MediaID == "" && want == "" {
		return "", false, publisher.ErrCannotReconcile
	}

	userID, err := c.me(ctx)
	if err != nil {
		return "", false, err
	}

	q := url.Values{
		"start_time":   {since.UTC().Format(time.RFC3339)},
		"max_results":  {"100"},
		"tweet.fields": {"attachments"},
		"expansions":   {"attachments.media_keys"},
	}
	for page := 0; page < reconcilePages; page++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.apiURL+"/2/users/"+url.PathEscape(userID)+"/tweets?"+q.Encode(), nil)
		if err != nil {
			return "", false, fmt.Errorf("create request: %w", err)
		}

		var resp struct {
			Data []tweet `json:"data"`
			Meta struct {
				NextToken string `json:"next_token"`
			} `json:"meta"`
		}
		if err := c.do(req, "list posts", &resp, false); err != nil {
			return "", false, err
		}

		for _, t := range resp.Data {
			if ref.MediaID != "" {
				if t.hasMedia(ref.MediaID) {
					return t.ID, true, nil
				}
				continue
			}
			if normalize(t.Text) == want {
				return t.ID, true, nil
			}
		}
		if resp.Meta.NextToken == "" {
			return "", false, nil
		}
		q.Set("pagination_token", resp.Meta.NextToken)
	}
	return "", false, fmt.Errorf("timeline since %s exceeds %d pages", since.UTC().Format(time.RFC3339), reconcilePages)
}

func (c *Client) me(ctx context.Context) (string, error) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	if c.userID != "" {
		return c.userID, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/2/users/me", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.do(req, "get user", &resp, false); err != nil {
		return "", err
	}
	c.userID = resp.Data.ID
	return c.userID, nil
}

// normalize drops links, which the platform rewrites, and collapses
// whitespace so posted text can be compared with what was sent.
func normalize(s string) string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func (c *Client) postForm(ctx context.Context, op string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, op, out, false)
}

// do sends req and maps the outcome onto the destination error kinds.
// When committing is set the request may have taken effect even if no
// answer came back, so transport and server failures are uncertain.
func (c *Client) do(req *http.Request, op string, out any, committing bool) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil && !committing {
			return req.Context().Err()
		}
		return &domain.Error{Kind: domain.KindDestinationUnavailable, Op: op, Err: err, Uncertain: committing}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.Error{Kind: domain.KindDestinationUnavailable, Op: op, Err: err, Uncertain: committing}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(op, resp, body, committing, c.now())
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return &domain.Error{Kind: domain.KindDestinationUnavailable, Op: op, Err: fmt.Errorf("decode response: %w", err), Uncertain: committing}
		}
	}
	return nil
}

func classify(op string, resp *http.Response, body []byte, committing bool, now time.Time) error {
	detail := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(truncateBody(body))))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := domain.NewError(domain.KindDestinationRateLimited, op, detail)
		if reset, err := strconv.ParseInt(resp.Header.Get("x-rate-limit-reset"), 10, 64); err == nil {
			if wait := time.Unix(reset, 0).Sub(now); wait > 0 {
				e.RetryAfter = wait
			}
		}
		return e
	case resp.StatusCode >= 500:
		return &domain.Error{Kind: domain.KindDestinationUnavailable, Op: op, Err: detail, Uncertain: committing}
	default:
		return domain.NewError(domain.KindDestinationRejected, op, detail)
	}
}

func truncateBody(b []byte) []byte {
	if len(b) > 512 {
		return b[:512]
	}
	return b
}
