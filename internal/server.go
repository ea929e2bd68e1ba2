package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"pangalink/config"
	"pangalink/entity"
	"pangalink/internal/banks"
	"pangalink/internal/protocol"
	"pangalink/services"
)

const (
	banklinkRequest   = "/banklink/:path"
	banklinkVersioned = "/banklink/:path/:bank"
	paymentPreview    = "/preview/:payment"
	paymentFinal      = "/final/:payment"
	bankList          = "/api/banks"
	signatureOrder    = "/api/banks/:bank/signature-order"
	projectList       = "/api/projects"
	projectItem       = "/api/projects/:project"
	projectCerts      = "/api/projects/:project/certificates"
	projectPayments   = "/api/projects/:project/payments"
	projectSample     = "/api/projects/:project/sample"
)

const maxBodySize = 1 << 20

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	router     *httprouter.Router
	payments   services.Payments
	projects   services.Projects
	logger     services.LogHandler
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf:   conf,
		router: httprouter.New(),
	}

	// register itself as a router for httpServer handler
	server.Register(server.router)
	server.httpServer = &http.Server{
		Handler: server.router,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.POST(banklinkRequest, s.banklink)
	router.GET(banklinkRequest, s.banklink)
	router.POST(banklinkVersioned, s.banklink)
	router.GET(banklinkVersioned, s.banklink)
	router.GET(paymentPreview, s.preview)
	router.POST(paymentFinal, s.final)
	router.GET(bankList, s.banks)
	router.GET(signatureOrder, s.signatureOrder)
	router.POST(projectList, s.createProject)
	router.GET(projectList, s.listProjects)
	router.GET(projectItem, s.getProject)
	router.PUT(projectItem, s.updateProject)
	router.DELETE(projectItem, s.deleteProject)
	router.POST(projectCerts, s.regenerateCertificates)
	router.GET(projectPayments, s.listPayments)
	router.POST(projectSample, s.samplePayment)
}

// SetMetrics exposes the metrics registry on the configured path.
func (s *Server) SetMetrics(metrics *Metrics) {
	if metrics == nil || !s.conf.Metrics.Enabled {
		return
	}
	s.router.Handler(http.MethodGet, s.conf.Metrics.Path, metrics.Handler())
}

func (s *Server) SetPaymentsService(payments services.Payments) {
	s.payments = payments
}

func (s *Server) SetProjectsService(projects services.Projects) {
	s.projects = projects
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	return err
}

type errorResponse struct {
	Error    string         `json:"error"`
	Stage    string         `json:"stage,omitempty"`
	Errors   []entity.Issue `json:"errors,omitempty"`
	Warnings []entity.Issue `json:"warnings,omitempty"`
}

type paymentResponse struct {
	Payment *entity.Payment `json:"payment"`
	Form    *entity.Form    `json:"form,omitempty"`
}

type listResponse struct {
	Items any   `json:"items"`
	Count int64 `json:"count,omitempty"`
	Page  int64 `json:"page"`
}

func (s *Server) banklink(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	req := &services.BanklinkRequest{
		Bank:        ps.ByName("path"),
		Method:      r.Method,
		Url:         r.URL.String(),
		ContentType: r.Header.Get("Content-Type"),
		Headers:     headerFields(r.Header),
	}
	if bank := ps.ByName("bank"); bank != "" {
		req.Version = req.Bank
		req.Bank = bank
	}
	if r.Method == http.MethodGet {
		req.Body = []byte(r.URL.RawQuery)
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			s.logger.Warn(fmt.Sprintf("[%s] banklink: read request body: %v", reqID, err))
			s.writeError(w, reqID, err)
			return
		}
		req.Body = body
	}

	s.logger.Debug(fmt.Sprintf("[%s] banklink %s %s", reqID, req.Method, req.Bank))
	outcome, err := s.payments.ServeBanklink(ctx, req)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, paymentResponse{Payment: outcome.Payment, Form: outcome.Form})
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	payment, err := s.payments.Preview(ctx, ps.ByName("payment"))
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, paymentResponse{Payment: payment})
}

// final completes a payment with the values of the confirmation form.
func (s *Server) final(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] final: parse form: %v", reqID, err))
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid form"})
		return
	}
	options := &entity.PaymentOptions{
		Action:        r.PostForm.Get("action"),
		SenderName:    r.PostForm.Get("sender_name"),
		SenderAccount: r.PostForm.Get("sender_account"),
		AuthUser:      r.PostForm.Get("auth_user"),
		AuthUserName:  r.PostForm.Get("auth_user_name"),
		AuthUserId:    r.PostForm.Get("auth_user_id"),
		AuthCountry:   r.PostForm.Get("auth_country"),
		AuthOther:     r.PostForm.Get("auth_other"),
		AuthToken:     r.PostForm.Get("auth_token"),
	}
	payment, form, err := s.payments.MakePayment(ctx, ps.ByName("payment"), options.Action, options)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, paymentResponse{Payment: payment, Form: form})
}

func (s *Server) banks(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, listResponse{Items: s.payments.Banks(), Page: 1})
}

func (s *Server) signatureOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reqID := GetRequestID(WithRequestID(r.Context()))
	order, err := s.payments.SignatureOrder(ps.ByName("bank"))
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	var project entity.Project
	if !s.decode(w, r, reqID, &project) {
		return
	}
	created, err := s.projects.CreateProject(ctx, &project)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	page := pageNumber(r)
	projects, err := s.projects.ListProjects(ctx, r.URL.Query().Get("owner"), page)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{Items: projects, Page: page})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	project, err := s.projects.GetProject(ctx, ps.ByName("project"))
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	var changes entity.Project
	if !s.decode(w, r, reqID, &changes) {
		return
	}
	project, err := s.projects.UpdateProject(ctx, ps.ByName("project"), &changes)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	if err := s.projects.DeleteProject(ctx, ps.ByName("project")); err != nil {
		s.writeError(w, reqID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) regenerateCertificates(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	project, err := s.projects.RegenerateCertificates(ctx, ps.ByName("project"))
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	page := pageNumber(r)
	payments, count, err := s.projects.ListPayments(ctx, ps.ByName("project"), page)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{Items: payments, Count: count, Page: page})
}

func (s *Server) samplePayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	var options services.SampleOptions
	if r.ContentLength != 0 && !s.decode(w, r, reqID, &options) {
		return
	}
	sample, err := s.payments.SamplePayment(ctx, ps.ByName("project"), s.conf.BaseURL(), &options)
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sample)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, reqID string, target any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] read request body: %v", reqID, err))
		s.writeError(w, reqID, err)
		return false
	}
	if err = json.Unmarshal(body, target); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] decode request body: %v", reqID, err))
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func pageNumber(r *http.Request) int64 {
	page, err := strconv.ParseInt(r.URL.Query().Get("page"), 10, 64)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// writeError maps service errors to a status code and the JSON error envelope.
func (s *Server) writeError(w http.ResponseWriter, reqID string, err error) {
	var validationError *protocol.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
	case errors.As(err, &validationError):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:    validationError.Error(),
			Stage:    validationError.Stage,
			Errors:   validationError.Errors,
			Warnings: validationError.Warnings,
		})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, banks.ErrUnknownBank):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrCannotContinue):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrUnknownAction), errors.Is(err, ErrInvalidOptions), errors.Is(err, ErrInvalidProject):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Error(fmt.Sprintf("[%s] request failed", reqID), err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Warn(fmt.Sprintf("write response: %v", err))
	}
}
