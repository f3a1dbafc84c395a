// Command canfetchd runs the canfetch HTTP gateway: a thin gin shim
// translating HTTP requests into fetch.Request calls against the CAN
// adapter, covering the four content://, name://, linked://, and
// bus:// schemes.
package main

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	logging "github.com/ipfs/go-log/v2"

	"github.com/canfetch/adapter/config"
	"github.com/canfetch/adapter/pkg/canclient"
	"github.com/canfetch/adapter/pkg/fetch"
)

var log = logging.Logger("canfetchd")

func main() {
	cfg := config.LoadConfig()

	client, err := canclient.New(cfg.CANClientConfig())
	if err != nil {
		log.Fatalf("failed to initialize CAN client: %v", err)
	}
	defer client.Close()
	log.Infow("CAN client initialized", "blockStore", cfg.BlockStorePath, "nats", cfg.NATSURL)

	adapter := fetch.New(client, fetch.WithWritable(cfg.Writable))

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	router.GET("/healthz", healthzHandler(client))
	router.Any("/:scheme/*rest", fetchHandler(adapter))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	go func() {
		log.Infow("server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnw("graceful shutdown failed", "err", err)
	}
}

func healthzHandler(client *canclient.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := client.Healthy(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// fetchHandler reconstructs a scheme://host/path CAN URL from the
// matched /:scheme/*rest route and hands it to the adapter, translating
// the net/http request into a fetch.Request and the returned
// fetch.Response back onto the gin response writer.
func fetchHandler(adapter *fetch.Adapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme := c.Param("scheme")
		rest := strings.TrimPrefix(c.Param("rest"), "/")
		canURL := scheme + "://" + rest
		if rq := c.Request.URL.RawQuery; rq != "" {
			canURL += "?" + rq
		}

		req := &fetch.Request{
			Method:  fetch.Method(c.Request.Method),
			URL:     canURL,
			Headers: headersFromHTTP(c.Request.Header),
			Body:    c.Request.Body,
		}
		req = req.WithContext(c.Request.Context())

		if isMultipart(c.Request) {
			form, err := c.MultipartForm()
			if err != nil {
				c.String(http.StatusBadRequest, "failed to parse multipart form: %v", err)
				return
			}
			req.MultipartForm = convertMultipart(form)
			req.Body = nil
		}

		resp, err := adapter.Fetch(req)
		if err != nil {
			log.Errorw("adapter returned an error rather than a mapped response", "url", canURL, "err", err)
			c.String(http.StatusInternalServerError, "internal error: %v", err)
			return
		}
		defer resp.Body.Close()

		for k, vs := range resp.Headers {
			for _, v := range vs {
				c.Writer.Header().Add(k, v)
			}
		}
		c.Writer.WriteHeader(resp.Status)
		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			log.Debugw("response copy interrupted", "url", canURL, "err", err)
		}
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

func headersFromHTTP(h http.Header) fetch.Header {
	out := fetch.NewHeader()
	for k, vs := range h {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}

func convertMultipart(form *multipart.Form) *fetch.MultipartForm {
	out := &fetch.MultipartForm{Files: map[string][]fetch.MultipartFile{}}
	for field, headers := range form.File {
		if field != "file" {
			continue
		}
		for _, fh := range headers {
			fh := fh
			out.Files[field] = append(out.Files[field], fetch.MultipartFile{
				FieldName: field,
				Filename:  fh.Filename,
				Open:      func() (io.ReadCloser, error) { return fh.Open() },
			})
		}
	}
	return out
}
