package web

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/services/conversion"
	"github.com/vadiminshakov/remit/internal/services/escrow"
	"github.com/vadiminshakov/remit/internal/services/settlement"
)

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := domain.NewCurrency(q.Get("from")), domain.NewCurrency(q.Get("to"))
	if from == "" || to == "" {
		s.writeError(w, r, domain.ErrValidation.New("from and to query parameters are required"))
		return
	}

	rate, err := s.quoter.Rate(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rateResponse{From: from, To: to, Rate: rate})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := s.decode(w, r, defaultBodyLimit, domain.ErrValidation, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	creq := conversion.Request{
		FromCurrency: domain.NewCurrency(req.From),
		ToCurrency:   domain.NewCurrency(req.To),
	}
	for _, f := range []struct {
		name string
		in   *string
		out  *decimal.NullDecimal
	}{
		{"send_amount", req.SendAmount, &creq.SendAmount},
		{"receive_amount", req.ReceiveAmount, &creq.ReceiveAmount},
		{"fee_percent", req.FeePercent, &creq.FeePercent},
		{"spread_percent", req.SpreadPercent, &creq.SpreadPercent},
	} {
		v, err := parseOptionalDecimal(f.name, f.in)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		*f.out = v
	}

	quote, err := s.quoter.Quote(r.Context(), creq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req createEscrowRequest
	if err := s.decode(w, r, defaultBodyLimit, domain.ErrValidation, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := moneyDTO{Amount: req.Amount, Currency: req.Currency}.toMoney()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fee, err := parseOptionalDecimal("fee_percent", req.FeePercent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.escrows.Create(r.Context(), escrow.CreateRequest{
		BuyerID:     buyer,
		Seller:      req.Seller,
		Amount:      amount,
		FeePercent:  fee,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListEscrows(w http.ResponseWriter, r *http.Request) {
	party, err := s.listParty(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.escrows.List(r.Context(), party)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, escrowList{Escrows: list})
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.escrows.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !tx.IsParty(caller) && !s.admins.IsAdmin(caller) {
		s.writeError(w, r, domain.ErrUnauthorizedActor.New("only parties and admins can view an escrow"))
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

type escrowOp func(ctx context.Context, txID, actorID string) (*domain.EscrowTransaction, error)

// escrowTransition serves the operations that need nothing beyond the actor.
func (s *Server) escrowTransition(op escrowOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := actor(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		tx, err := op(r.Context(), r.PathValue("id"), caller)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, tx)
	}
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	reason, files, err := s.decodeDispute(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.escrows.Dispute(r.Context(), r.PathValue("id"), caller, reason, files)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req resolveRequest
	if err := s.decode(w, r, defaultBodyLimit, domain.ErrValidation, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.escrows.Resolve(r.Context(), r.PathValue("id"), caller, domain.Resolution(req.Resolution))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	initiator, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req initiateRequest
	if err := s.decode(w, r, defaultBodyLimit, domain.ErrValidation, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := moneyDTO{Amount: req.Amount, Currency: req.Currency}.toMoney()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.settlements.Initiate(r.Context(), settlement.InitiateRequest{
		InitiatorID:        initiator,
		CounterpartyID:     req.CounterpartyID,
		Amount:             amount,
		DestinationAddress: req.DestinationAddress,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	party, err := s.listParty(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.settlements.List(r.Context(), party)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settlementList{Settlements: list})
}

func (s *Server) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.settlements.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if caller != tx.InitiatingPartyID && caller != tx.CounterpartyID && !s.admins.IsAdmin(caller) {
		s.writeError(w, r, domain.ErrUnauthorizedActor.New("only parties and admins can view a settlement"))
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.settlements.Sign(r.Context(), r.PathValue("id"), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req rejectRequest
	if err := s.decode(w, r, defaultBodyLimit, domain.ErrValidation, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.settlements.Reject(r.Context(), r.PathValue("id"), caller, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner := r.PathValue("owner")
	if owner != caller && !s.admins.IsAdmin(caller) {
		s.writeError(w, r, domain.ErrUnauthorizedActor.New("wallets are visible to their owner and admins"))
		return
	}
	s.writeWallets(w, r, owner)
}

// handleDeposit tops up a wallet from outside the platform. Admin only.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, err := actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.admins.IsAdmin(caller) {
		s.writeError(w, r, domain.ErrUnauthorizedActor.New("only admins can deposit"))
		return
	}

	var req moneyDTO
	if err := s.decode(w, r, defaultBodyLimit, domain.ErrValidation, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.toMoney()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !amount.IsPositive() {
		s.writeError(w, r, domain.ErrValidation.New("deposit amount must be positive"))
		return
	}

	owner := r.PathValue("owner")
	if err := s.wallets.Credit(r.Context(), owner, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeWallets(w, r, owner)
}

func (s *Server) writeWallets(w http.ResponseWriter, r *http.Request, owner string) {
	accounts, err := s.wallets.Accounts(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, walletResponse{OwnerID: owner, Accounts: accounts})
}

// listParty returns whose records to list. Admins may pass ?party= (empty lists everything
// where the store supports it); everyone else sees their own.
func (s *Server) listParty(r *http.Request) (string, error) {
	caller, err := actor(r)
	if err != nil {
		return "", err
	}
	if !s.admins.IsAdmin(caller) {
		return caller, nil
	}
	if q := r.URL.Query(); q.Has("party") {
		return q.Get("party"), nil
	}
	return caller, nil
}
