package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/modwarden/warden/util"

	"github.com/carlmjohnson/versioninfo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("classifier")

const DefaultHiveEndpoint = "https://api.thehive.ai/api/v2/task/sync"

// Client for a Hive-style synchronous moderation API. Text is sent as a form field; the first image URL, if any, is sent by reference.
type HiveClient struct {
	Client   *http.Client
	ApiToken string
	Endpoint string
	// minimum class score for a class to count as a finding
	Threshold float64
	// classes which never count as a finding, in addition to any "no_" prefixed class
	SafeClasses map[string]bool
	Logger      *slog.Logger
}

var _ Classifier = (*HiveClient)(nil)

// schema: https://docs.thehive.ai/reference/classification
type HiveResp struct {
	Status []HiveResp_Status `json:"status"`
}

type HiveResp_Status struct {
	Response HiveResp_Response `json:"response"`
}

type HiveResp_Response struct {
	Output []HiveResp_Out `json:"output"`
}

type HiveResp_Out struct {
	Time    float64          `json:"time"`
	Classes []HiveResp_Class `json:"classes"`
}

type HiveResp_Class struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
}

func NewHiveClient(token string) *HiveClient {
	return &HiveClient{
		Client:    util.RobustHTTPClient(),
		ApiToken:  token,
		Endpoint:  DefaultHiveEndpoint,
		Threshold: 0.9,
		SafeClasses: map[string]bool{
			"safe":    true,
			"neutral": true,
		},
		Logger: slog.Default().With("system", "classifier"),
	}
}

func (hc *HiveClient) safeClass(class string) bool {
	return strings.HasPrefix(class, "no_") || hc.SafeClasses[class]
}

// Reduces a response to a single verdict: the highest-scoring unsafe class at or above threshold, if any. Otherwise the verdict is safe, labeled with the top class overall.
func (hc *HiveClient) Summarize(resp *HiveResp) *Verdict {
	var all []HiveResp_Class
	for _, status := range resp.Status {
		for _, out := range status.Response.Output {
			all = append(all, out.Classes...)
		}
	}
	if len(all) == 0 {
		return &Verdict{Safe: true}
	}
	// stable ordering for equal scores
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Class < all[j].Class
	})
	for _, cls := range all {
		if cls.Score < hc.Threshold {
			break
		}
		if !hc.safeClass(cls.Class) {
			return &Verdict{Label: cls.Class, Score: cls.Score, Safe: false}
		}
	}
	return &Verdict{Label: all[0].Class, Score: all[0].Score, Safe: true}
}

func (hc *HiveClient) Classify(ctx context.Context, in Input) (*Verdict, error) {
	if hc.ApiToken == "" {
		return nil, &ClassifierError{Op: "classify", Err: ErrNoCredentials}
	}

	ctx, span := tracer.Start(ctx, "Classify")
	defer span.End()
	span.SetAttributes(attribute.Int("text_len", len(in.Text)), attribute.Int("images", len(in.ImageURLs)))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if in.Text != "" {
		if err := writer.WriteField("text_data", in.Text); err != nil {
			return nil, &ClassifierError{Op: "encode", Err: err}
		}
	}
	if len(in.ImageURLs) > 0 {
		if err := writer.WriteField("url", in.ImageURLs[0]); err != nil {
			return nil, &ClassifierError{Op: "encode", Err: err}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, &ClassifierError{Op: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", hc.Endpoint, body)
	if err != nil {
		return nil, &ClassifierError{Op: "request", Err: err}
	}

	start := time.Now()
	defer func() {
		duration := time.Since(start)
		classifierAPIDuration.Observe(duration.Seconds())
	}()

	req.Header.Set("Authorization", fmt.Sprintf("Token %s", hc.ApiToken))
	req.Header.Add("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "warden/"+versioninfo.Short())

	res, err := hc.Client.Do(req)
	if err != nil {
		classifierAPICount.WithLabelValues("error").Inc()
		return nil, &ClassifierError{Op: "request", Err: err}
	}
	defer res.Body.Close()

	classifierAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != http.StatusOK {
		return nil, &ClassifierError{Op: "request", StatusCode: res.StatusCode}
	}

	respBytes, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, &ClassifierError{Op: "read", Err: err}
	}

	var respObj HiveResp
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return nil, &ClassifierError{Op: "decode", Err: err}
	}
	v := hc.Summarize(&respObj)
	hc.Logger.Debug("classifier-response", "label", v.Label, "score", v.Score, "safe", v.Safe)
	span.SetAttributes(attribute.String("label", v.Label), attribute.Bool("safe", v.Safe))
	return v, nil
}
