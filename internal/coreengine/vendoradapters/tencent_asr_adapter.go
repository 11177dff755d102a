package vendoradapters

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	asr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/asr/v20190614"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tcerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
)

const tencentDefaultRegion = "ap-guangzhou"

// TencentASRAdapter implements the ASRAdapter interface for Tencent Cloud
// one-sentence recognition, which accepts clips up to one minute.
type TencentASRAdapter struct {
	client *asr.Client
	model  string
}

// NewTencentASRAdapter takes the SecretId in APIKey and the SecretKey in
// APISecret. Model is the engine type such as "16k_en"; when empty it is
// derived from the request language.
func NewTencentASRAdapter(cfg Config) (*TencentASRAdapter, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("Tencent Cloud SecretId and SecretKey are required")
	}
	region := cfg.Region
	if region == "" {
		region = tencentDefaultRegion
	}

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "asr.tencentcloudapi.com"
	if cfg.Endpoint != "" {
		cpf.HttpProfile.Endpoint = cfg.Endpoint
	}
	cpf.HttpProfile.ReqTimeout = int(cfg.Timeout.Seconds())

	client, err := asr.NewClient(common.NewCredential(cfg.APIKey, cfg.APISecret), region, cpf)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tencent ASR client: %w", err)
	}
	return &TencentASRAdapter{client: client, model: cfg.Model}, nil
}

func (a *TencentASRAdapter) Name() string { return EngineTencent }

// Recognize transcribes audio using Tencent Cloud Speech Recognition API.
func (a *TencentASRAdapter) Recognize(ctx context.Context, audioFilePath string, languageCode string) (string, string, error) {
	audioBytes, err := os.ReadFile(audioFilePath)
	if err != nil {
		return "", "", fmt.Errorf("read audio: %w", err)
	}

	voiceFormat := strings.ToLower(strings.TrimPrefix(filepath.Ext(audioFilePath), "."))
	if voiceFormat == "" {
		voiceFormat = "wav"
	}

	request := asr.NewSentenceRecognitionRequest()
	request.EngSerViceType = common.StringPtr(tencentEngineType(a.model, languageCode))
	request.SourceType = common.Uint64Ptr(1)
	request.VoiceFormat = common.StringPtr(voiceFormat)
	request.Data = common.StringPtr(base64.StdEncoding.EncodeToString(audioBytes))
	request.DataLen = common.Int64Ptr(int64(len(audioBytes)))

	startTime := time.Now()
	response, err := a.client.SentenceRecognitionWithContext(ctx, request)
	log.Debug().Str("file", audioFilePath).Dur("latency", time.Since(startTime)).Msg("Tencent ASR call completed")
	if err != nil {
		var sdkErr *tcerrors.TencentCloudSDKError
		if errors.As(err, &sdkErr) {
			return "", "", fmt.Errorf("Tencent ASR API error: %s (code %s, request %s)", sdkErr.GetMessage(), sdkErr.GetCode(), sdkErr.GetRequestId())
		}
		return "", "", fmt.Errorf("Tencent ASR API request failed: %w", err)
	}

	rawResponse := response.ToJsonString()
	if response.Response == nil || response.Response.Result == nil {
		return "", rawResponse, fmt.Errorf("Tencent ASR API returned no result")
	}
	return *response.Response.Result, rawResponse, nil
}

// tencentEngineType picks the 16 kHz engine for the language unless one was
// configured explicitly.
func tencentEngineType(model, languageCode string) string {
	if model != "" {
		return model
	}
	switch {
	case strings.HasPrefix(languageCode, "zh"):
		return "16k_zh"
	case strings.HasPrefix(languageCode, "ja"):
		return "16k_ja"
	default:
		return "16k_en"
	}
}
