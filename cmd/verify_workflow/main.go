// ==============================================================================
// END-TO-END WORKFLOW VERIFICATION - cmd/verify_workflow/main.go
// ==============================================================================
// Exercises the full compliance flow against in-memory stores: multisig
// approval, key hierarchy setup, commitments, disclosure, decryption per
// role, rotation, and report generation. No database or server required.
package main

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"privaudit/internal/aml"
	"privaudit/internal/commitment"
	"privaudit/internal/compliance"
	"privaudit/internal/crypto"
	"privaudit/internal/disclosure"
	"privaudit/internal/domain"
	"privaudit/internal/multisig"
	"privaudit/internal/repository/memory"
	"privaudit/internal/viewingkey"
	"privaudit/pkg/logger"
)

type signer struct {
	name       string
	privateKey string
}

func main() {
	log.SetFlags(log.LstdFlags)
	ctx := context.Background()
	nop := logger.NewNop()

	rootSecret := make([]byte, 32)
	if _, err := cryptorand.Read(rootSecret); err != nil {
		log.Fatalf("root secret: %v", err)
	}

	// --- Step 1: multisig quorum ---
	approvals := memory.NewApprovalStore()
	multisigService, err := multisig.NewService(approvals, 3, 0, nop)
	if err != nil {
		log.Fatalf("multisig service: %v", err)
	}

	signers := make([]signer, 0, 3)
	for _, name := range []string{"officer-a", "officer-b", "officer-c"} {
		pub, priv, err := crypto.GenerateSignerKeypair()
		if err != nil {
			log.Fatalf("keypair for %s: %v", name, err)
		}
		if err := multisigService.RegisterSigner(ctx, name, pub); err != nil {
			log.Fatalf("register %s: %v", name, err)
		}
		signers = append(signers, signer{name: name, privateKey: priv})
	}
	log.Printf("✅ Step 1: registered %d signers", len(signers))

	approve := func(purpose string) *domain.ApprovalRequest {
		req, err := multisigService.CreateRequest(ctx, "compliance-admin")
		if err != nil {
			log.Fatalf("create request (%s): %v", purpose, err)
		}
		for _, s := range signers {
			sig, err := crypto.Sign(multisig.SigningMessage(req.RequestID, s.name), s.privateKey)
			if err != nil {
				log.Fatalf("sign (%s): %v", purpose, err)
			}
			if req, err = multisigService.AddSignature(ctx, req.RequestID, s.name, sig); err != nil {
				log.Fatalf("add signature (%s): %v", purpose, err)
			}
		}
		if req.Status != domain.ApprovalStatusApproved {
			log.Fatalf("request for %s not approved: %s", purpose, req.Status)
		}
		return req
	}

	setupApproval := approve("hierarchy setup")
	log.Printf("✅ Step 2: approval request %s reached quorum", setupApproval.RequestID)

	// --- Step 3: viewing key hierarchy ---
	keyService, err := viewingkey.NewService(
		memory.NewViewingKeyStore(), memory.NewRotationStore(), multisigService, rootSecret, nop)
	if err != nil {
		log.Fatalf("viewing key service: %v", err)
	}

	txStore := memory.NewTransactionStore()
	disclosureService := disclosure.NewService(memory.NewDisclosureStore(), keyService, nop)
	amlChecker := aml.NewHeuristicChecker(decimal.NewFromInt(10000), []string{"0xSANCTIONED"}, nop)
	complianceService := compliance.NewService(keyService, disclosureService, txStore, amlChecker, nop)

	hierarchy, err := complianceService.SetupHierarchy(ctx, setupApproval.RequestID)
	if err != nil {
		log.Fatalf("setup hierarchy: %v", err)
	}
	log.Printf("✅ Step 3: hierarchy ready (master=%s quarter=%s)",
		short(hierarchy.Master.KeyHash), hierarchy.Internal.Path)

	// Ancestry proofs cover direct parent-child links only; walk the chain.
	links := []struct {
		name          string
		parent, child *domain.ViewingKey
	}{
		{"master->regulator", hierarchy.Master, hierarchy.Regulator},
		{"regulator->external", hierarchy.Regulator, hierarchy.External},
		{"external->internal", hierarchy.External, hierarchy.Internal},
	}
	for _, l := range links {
		ok, err := keyService.VerifyHierarchy(ctx, l.parent.ID, l.child.ID)
		if err != nil || !ok {
			log.Fatalf("hierarchy proof failed for %s: ok=%t err=%v", l.name, ok, err)
		}
	}
	log.Printf("✅ Step 4: every hierarchy link proven down to the quarter key")

	// --- Step 5: commitments ---
	commitmentService, err := commitment.NewService(memory.NewCommitmentStore(), rootSecret, nop)
	if err != nil {
		log.Fatalf("commitment service: %v", err)
	}
	c1, err := commitmentService.Create(ctx, 1500)
	if err != nil {
		log.Fatalf("commit 1500: %v", err)
	}
	c2, err := commitmentService.Create(ctx, 2500)
	if err != nil {
		log.Fatalf("commit 2500: %v", err)
	}
	sum, err := commitmentService.Add(ctx, c1.ID, c2.ID)
	if err != nil {
		log.Fatalf("homomorphic add: %v", err)
	}
	sumBlinding, err := commitmentService.BlindingFactor(ctx, sum.ID)
	if err != nil {
		log.Fatalf("sum blinding: %v", err)
	}
	ok, err := commitmentService.Verify(ctx, sum.ID, 4000, sumBlinding)
	if err != nil || !ok {
		log.Fatalf("sum commitment does not open to 4000: ok=%t err=%v", ok, err)
	}
	log.Printf("✅ Step 5: C(1500) + C(2500) opens to 4000")

	// --- Step 6: disclosure per role ---
	tx := &domain.TransactionRecord{
		ID:               uuid.New(),
		Sender:           "0xALICE",
		StealthRecipient: "0xstealth-bob",
		EncryptedAmount:  "unused-in-demo",
		Amount:           decimal.NewFromInt(4200),
		Signature:        "0xsig",
		Memo:             "invoice 7781",
		CreatedAt:        time.Now().UTC(),
	}
	if err := txStore.Create(ctx, tx); err != nil {
		log.Fatalf("store transaction: %v", err)
	}

	result, err := complianceService.DiscloseToAuditor(ctx, tx.ID, "auditor-ext-1", domain.RoleExternal)
	if err != nil {
		log.Fatalf("disclose to external auditor: %v", err)
	}
	fields, err := disclosureService.Decrypt(ctx, result.Disclosure.ID, hierarchy.External)
	if err != nil {
		log.Fatalf("external decrypt: %v", err)
	}
	if _, leaked := fields["sender"]; leaked {
		log.Fatalf("external disclosure leaked sender")
	}
	log.Printf("✅ Step 6: external auditor sees %d fields (risk=%s, status=%s)",
		len(fields), result.AML.RiskLevel, result.AML.Status)

	// Internal tier must not open an external-tier disclosure.
	if _, err := disclosureService.Decrypt(ctx, result.Disclosure.ID, hierarchy.Internal); err == nil {
		log.Fatalf("internal key opened an external disclosure")
	}
	log.Printf("✅ Step 7: foreign key rejected")

	// --- Step 8: rotation with immediate grace expiry ---
	rotateApproval := approve("key rotation")
	replacement, err := keyService.Rotate(ctx, hierarchy.External.ID, "credential refresh", 0, rotateApproval.RequestID)
	if err != nil {
		log.Fatalf("rotate external key: %v", err)
	}
	executed, err := keyService.ExecuteDueRotations(ctx)
	if err != nil {
		log.Fatalf("execute rotations: %v", err)
	}
	oldExternal, err := keyService.GetByID(ctx, hierarchy.External.ID)
	if err != nil {
		log.Fatalf("reload external key: %v", err)
	}
	if _, err := disclosureService.Decrypt(ctx, result.Disclosure.ID, oldExternal); err == nil {
		log.Fatalf("rotated-out key still decrypts")
	}
	log.Printf("✅ Step 8: rotation executed (%d revoked), old key locked out, replacement %s",
		executed, short(replacement.KeyHash))

	// --- Step 9: report ---
	now := time.Now().UTC()
	report, err := complianceService.GenerateReport(ctx, now.Add(-time.Hour), now.Add(time.Hour), domain.RoleExternal)
	if err != nil {
		log.Fatalf("generate report: %v", err)
	}
	log.Printf("✅ Step 9: report covers %d disclosures, total amount %s",
		report.TotalDisclosures, report.TotalAmount)

	fmt.Println("\nAll workflow steps passed.")
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

