package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/chriskillpack/glance/dataurl"
	"github.com/chriskillpack/glance/describer"
)

const (
	imagePreamble = `A chat between a curious human and an artificial intelligence assistant. The assistant gives helpful, detailed, and polite answers to the human's questions.
USER:`
	imageSuffix = `
ASSISTANT:`

	// llama.cpp substitutes [img-N] in the prompt with image_data entry N.
	imageID = 10
)

type jsonmap map[string]any

// These were lifted from the web inspector for the server UI
var defaultparams = jsonmap{
	"n_predict":      400,
	"temperature":    0.7,
	"stop":           []string{"</s>", "USER:"},
	"repeat_last_n":  256,
	"repeat_penalty": 1.18,
	"top_k":          40,
	"top_p":          0.5,
	"cache_prompt":   true,
	"stream":         false,
}

type llama struct {
	srvAddr string
	seed    int
	prompt  string

	client *http.Client
}

var _ describer.Describer = &llama{}

func Init(srvAddr string, seed int, httpClient *http.Client) *llama {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &llama{
		srvAddr: strings.TrimRight(srvAddr, "/"),
		seed:    seed,
		prompt:  describer.Prompt,
		client:  httpClient,
	}
}

func (l *llama) Name() string { return "llama" }

// The llama.cpp server hosts whichever model it was launched with.
func (l *llama) Model() string { return "llama.cpp" }

func (l *llama) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.srvAddr+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (l *llama) DescribeImage(ctx context.Context, dataURL string) (string, error) {
	// image_data takes the bare base64 payload
	_, imb64, err := dataurl.Split(dataURL)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf("%s[img-%d]%s%s", imagePreamble, imageID, l.prompt, imageSuffix)
	return l.sendRequest(ctx, prompt, jsonmap{
		"image_data": []jsonmap{
			{
				"data": imb64, "id": imageID,
			},
		},
	})
}

func (l *llama) sendRequest(ctx context.Context, prompt string, keys jsonmap) (string, error) {
	data := maps.Clone(defaultparams)
	maps.Copy(data, keys)
	data["prompt"] = prompt
	data["seed"] = l.seed

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&data); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.srvAddr+"/completion", buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llama server returned status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	respbody := struct {
		Content string
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&respbody); err != nil {
		return "", fmt.Errorf("decoding llama response: %w", err)
	}

	return strings.TrimLeft(respbody.Content, " "), nil
}
