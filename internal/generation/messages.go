package generation

import (
	"net/http"
	"strings"

	"github.com/LeventeLantos/royal-studio/internal/model"
)

const (
	MsgCancelled      = "Generation cancelled by user."
	MsgRetriesReached = " Maximum retry attempts reached."
	MsgNetworkFailed  = "An unexpected error occurred after multiple attempts. Please try again later."
	MsgGeneric        = "An unexpected error occurred. Please try again."

	msgBusy        = "Server is busy processing other requests. Please wait a moment and try again."
	msgUnavailable = "Image generation service is temporarily unavailable. This usually resolves quickly - please try again."
	msgServerError = "Server encountered an error processing your request. This might be due to prompt complexity - try simplifying your description."
	msgTimeout     = "Generation took longer than expected. Try using a simpler prompt or check your connection."
	msgResources   = "Server resources are currently limited. Try again in a few moments or use a shorter prompt."
)

// UserMessage maps a failed generation response to the text shown to the user.
func UserMessage(status int, message string) string {
	switch status {
	case http.StatusTooManyRequests:
		return msgBusy
	case http.StatusServiceUnavailable:
		return msgUnavailable
	case http.StatusInternalServerError:
		return msgServerError
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "timeout"):
		return msgTimeout
	case strings.Contains(lower, "memory"), strings.Contains(lower, "resource"):
		return msgResources
	case strings.TrimSpace(message) != "":
		return message
	default:
		return MsgGeneric
	}
}

// TimeoutMessage explains an attempt abandoned after its adaptive budget.
func TimeoutMessage(c model.Complexity) string {
	switch c {
	case model.High:
		return "Complex image generation timed out after 4 minutes. Try breaking down your prompt into simpler elements or reducing detail requirements."
	case model.Medium:
		return "Image generation timed out after 3 minutes. Consider simplifying your prompt for faster results."
	default:
		return "Image generation timed out after 2 minutes. Try using a simpler prompt."
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}
