package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"luxe-escrow-server/models"
	"luxe-escrow-server/payments"
	"luxe-escrow-server/repository"
)

// DocumentUploader stores a verification document and returns where it lives.
type DocumentUploader interface {
	UploadDocument(ctx context.Context, file io.Reader, partnerID, documentType string) (url, publicID string, err error)
}

var documentTypes = map[string]bool{
	"business_license":     true,
	"insurance":            true,
	"vehicle_registration": true,
	"driver_license":       true,
	"identity":             true,
	"other":                true,
}

// OnboardingService manages partners' connected accounts and verification documents.
type OnboardingService struct {
	store       repository.Store
	gateway     payments.Gateway
	notify      *Notifier
	uploader    DocumentUploader
	frontendURL string
	now         func() time.Time
}

// NewOnboardingService builds the service; uploader may be nil when document storage is not configured.
func NewOnboardingService(store repository.Store, gateway payments.Gateway, notifier *Notifier, uploader DocumentUploader, frontendURL string) *OnboardingService {
	return &OnboardingService{
		store:       store,
		gateway:     gateway,
		notify:      notifier,
		uploader:    uploader,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

type ConnectAccountInput struct {
	PartnerID    string
	Email        string
	Country      string
	BusinessType string
}

// AccountStatus is the capability summary shown on the partner dashboard.
type AccountStatus struct {
	AccountID          string   `json:"accountId"`
	ChargesEnabled     bool     `json:"chargesEnabled"`
	PayoutsEnabled     bool     `json:"payoutsEnabled"`
	DetailsSubmitted   bool     `json:"detailsSubmitted"`
	RequirementsDue    []string `json:"requirementsDue"`
	OnboardingComplete bool     `json:"onboardingComplete"`
}

// CreateConnectAccount creates the partner's connected account, or returns the existing one.
func (s *OnboardingService) CreateConnectAccount(ctx context.Context, in ConnectAccountInput) (string, error) {
	if in.PartnerID == "" || strings.TrimSpace(in.Email) == "" {
		return "", E(KindValidation, "partnerId and email are required")
	}
	country := strings.ToUpper(strings.TrimSpace(in.Country))
	if country == "" {
		country = "US"
	}
	if len(country) != 2 {
		return "", E(KindValidation, "Country must be a 2-letter ISO code")
	}
	businessType := strings.ToLower(strings.TrimSpace(in.BusinessType))
	if businessType == "" {
		businessType = "individual"
	}
	if businessType != "individual" && businessType != "company" {
		return "", E(KindValidation, "businessType must be individual or company")
	}

	existing, err := s.store.GetPartnerAccount(ctx, in.PartnerID)
	if err == nil {
		log.Printf("⚠️ Partner %s already has connected account %s", in.PartnerID, existing.StripeAccountID)
		return existing.StripeAccountID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", Wrap(KindInternal, err, "Failed to load partner account")
	}

	user, err := s.store.GetUser(ctx, in.PartnerID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", E(KindNotFound, "Partner not found")
	}
	if err != nil {
		return "", Wrap(KindInternal, err, "Failed to load partner")
	}
	if !user.IsPartner() {
		return "", E(KindForbidden, "Only partners can create a connected account")
	}

	acct, err := s.gateway.CreateConnectedAccount(ctx, payments.AccountInput{
		PartnerID:    in.PartnerID,
		Email:        strings.TrimSpace(in.Email),
		Country:      country,
		BusinessType: businessType,
	})
	if err != nil {
		log.Printf("❌ Failed to create connected account for partner %s: %v", in.PartnerID, err)
		return "", Wrap(KindUpstream, err, "Failed to create connected account")
	}

	now := s.now()
	record := &models.PartnerStripeAccount{
		PartnerID:        in.PartnerID,
		StripeAccountID:  acct.ID,
		Email:            strings.TrimSpace(in.Email),
		Country:          country,
		BusinessType:     businessType,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
		RequirementsDue:  acct.RequirementsDue,
		LastSyncedAt:     &now,
	}
	if err := s.store.SavePartnerAccount(ctx, record); err != nil {
		return "", Wrap(KindInternal, err, "Failed to save connected account")
	}

	log.Printf("✅ Connected account %s created for partner %s", acct.ID, in.PartnerID)
	return acct.ID, nil
}

// CreateOnboardingLink returns a hosted onboarding URL that sends the partner back to the dashboard.
func (s *OnboardingService) CreateOnboardingLink(ctx context.Context, partnerID string) (*payments.Link, error) {
	acct, err := s.account(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	link, err := s.gateway.CreateOnboardingLink(ctx, acct.StripeAccountID,
		s.frontendURL+"/partner/onboarding/refresh",
		s.frontendURL+"/partner/onboarding/complete")
	if err != nil {
		return nil, Wrap(KindUpstream, err, "Failed to create onboarding link")
	}
	return link, nil
}

// CreateDashboardLink returns a single-use login link to the partner's Express dashboard.
func (s *OnboardingService) CreateDashboardLink(ctx context.Context, partnerID string) (*payments.Link, error) {
	acct, err := s.account(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	link, err := s.gateway.CreateDashboardLink(ctx, acct.StripeAccountID)
	if err != nil {
		return nil, Wrap(KindUpstream, err, "Failed to create dashboard link")
	}
	return link, nil
}

// SyncAccountStatus refreshes the capability flags from the gateway and mirrors them locally.
func (s *OnboardingService) SyncAccountStatus(ctx context.Context, partnerID string) (*AccountStatus, error) {
	acct, err := s.account(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	remote, err := s.gateway.GetAccount(ctx, acct.StripeAccountID)
	if err != nil {
		return nil, Wrap(KindUpstream, err, "Failed to load connected account")
	}
	if _, err := s.mirror(ctx, acct, remote); err != nil {
		return nil, err
	}
	return statusOf(acct), nil
}

// HandleAccountUpdated mirrors an account.updated webhook. Unknown accounts are ignored.
func (s *OnboardingService) HandleAccountUpdated(ctx context.Context, remote *payments.Account) error {
	if remote == nil || remote.ID == "" {
		return E(KindValidation, "account payload is empty")
	}
	acct, err := s.store.GetPartnerAccountByStripeID(ctx, remote.ID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("⚠️ account.updated for unknown connected account %s", remote.ID)
		return nil
	}
	if err != nil {
		return Wrap(KindInternal, err, "Failed to load partner account")
	}

	becameReady, err := s.mirror(ctx, acct, remote)
	if err != nil {
		return err
	}
	if becameReady {
		s.notify.Partner(ctx, acct.PartnerID, "", models.NotifAccountUpdated,
			"Payouts enabled",
			"Your account is verified. You can now accept bookings and receive payouts.")
	}
	return nil
}

// mirror copies remote flags onto acct and saves it. It reports whether the account just
// became able to both charge and pay out.
func (s *OnboardingService) mirror(ctx context.Context, acct *models.PartnerStripeAccount, remote *payments.Account) (bool, error) {
	wasComplete := acct.OnboardingComplete()

	now := s.now()
	acct.ChargesEnabled = remote.ChargesEnabled
	acct.PayoutsEnabled = remote.PayoutsEnabled
	acct.DetailsSubmitted = remote.DetailsSubmitted
	acct.RequirementsDue = remote.RequirementsDue
	acct.LastSyncedAt = &now

	if err := s.store.SavePartnerAccount(ctx, acct); err != nil {
		return false, Wrap(KindInternal, err, "Failed to save account status")
	}
	log.Printf("✅ Synced connected account %s (charges=%t payouts=%t)", acct.StripeAccountID, acct.ChargesEnabled, acct.PayoutsEnabled)
	return !wasComplete && acct.OnboardingComplete(), nil
}

// UploadVerificationDocument stores a document and records it for review.
func (s *OnboardingService) UploadVerificationDocument(ctx context.Context, partnerID, documentType string, file io.Reader) (*models.PartnerDocument, error) {
	if partnerID == "" {
		return nil, E(KindValidation, "partnerId is required")
	}
	documentType = strings.ToLower(strings.TrimSpace(documentType))
	if !documentTypes[documentType] {
		return nil, E(KindValidation, "Unsupported document type %q", documentType)
	}
	if s.uploader == nil {
		return nil, E(KindUpstream, "Document storage is not configured")
	}

	user, err := s.store.GetUser(ctx, partnerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, E(KindNotFound, "Partner not found")
	}
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to load partner")
	}
	if !user.IsPartner() {
		return nil, E(KindForbidden, "Only partners can upload verification documents")
	}

	url, publicID, err := s.uploader.UploadDocument(ctx, file, partnerID, documentType)
	if err != nil {
		log.Printf("❌ Failed to upload %s for partner %s: %v", documentType, partnerID, err)
		return nil, Wrap(KindUpstream, err, "Failed to upload document")
	}

	doc := &models.PartnerDocument{
		PartnerID:    partnerID,
		DocumentType: documentType,
		URL:          url,
		PublicID:     publicID,
		Status:       models.DocumentStatusSubmitted,
	}
	if err := s.store.CreatePartnerDocument(ctx, doc); err != nil {
		return nil, Wrap(KindInternal, err, "Failed to record document")
	}

	log.Printf("✅ Verification document %s uploaded for partner %s", documentType, partnerID)
	s.notify.Admins(ctx, models.NotifDocumentSubmitted,
		"Verification document submitted",
		fmt.Sprintf("Partner %s submitted a %s document for review.", user.Email, strings.ReplaceAll(documentType, "_", " ")),
		map[string]interface{}{"partner_id": partnerID, "document_id": doc.ID})
	return doc, nil
}

func (s *OnboardingService) ListVerificationDocuments(ctx context.Context, partnerID string) ([]models.PartnerDocument, error) {
	if partnerID == "" {
		return nil, E(KindValidation, "partnerId is required")
	}
	docs, err := s.store.ListPartnerDocuments(ctx, partnerID)
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to list documents")
	}
	return docs, nil
}

func (s *OnboardingService) account(ctx context.Context, partnerID string) (*models.PartnerStripeAccount, error) {
	if partnerID == "" {
		return nil, E(KindValidation, "partnerId is required")
	}
	acct, err := s.store.GetPartnerAccount(ctx, partnerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, E(KindNotFound, "Partner has no connected account")
	}
	if err != nil {
		return nil, Wrap(KindInternal, err, "Failed to load partner account")
	}
	return acct, nil
}

func statusOf(acct *models.PartnerStripeAccount) *AccountStatus {
	due := []string(acct.RequirementsDue)
	if due == nil {
		due = []string{}
	}
	return &AccountStatus{
		AccountID:          acct.StripeAccountID,
		ChargesEnabled:     acct.ChargesEnabled,
		PayoutsEnabled:     acct.PayoutsEnabled,
		DetailsSubmitted:   acct.DetailsSubmitted,
		RequirementsDue:    due,
		OnboardingComplete: acct.OnboardingComplete(),
	}
}
