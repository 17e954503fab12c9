package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidtalk/vidtalk/internal/youtube"
)

func handleVideoDetails(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Videos == nil {
			httpError(w, http.StatusInternalServerError, codeInternalError, "video details lookup is not configured")
			return
		}

		videoID := r.URL.Query().Get("videoId")
		if videoID == "" {
			httpError(w, http.StatusBadRequest, codeInvalidRequest, "videoId is required")
			return
		}

		details, err := deps.Videos.VideoDetails(r.Context(), videoID)
		if err != nil {
			writeVideoError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(details)
	}
}

func writeVideoError(w http.ResponseWriter, err error) {
	var apiErr *youtube.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case youtube.KindNotFound:
			httpError(w, http.StatusNotFound, codeNotFound, "%s", apiErr.Msg)
			return
		case youtube.KindQuotaExceeded:
			w.Header().Set("Retry-After", "60")
			httpError(w, http.StatusTooManyRequests, codeQuotaExceeded, "%s", apiErr.Msg)
			return
		}
	}
	httpError(w, http.StatusBadGateway, codeUpstreamError, "metadata lookup failed: %v", err)
}
