package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateClientRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"omitempty,email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

type UpdateClientRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"omitempty,email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

type CreatePetRequest struct {
	Name        string  `json:"name" binding:"required"`
	Species     string  `json:"species"`
	Breed       string  `json:"breed"`
	DateOfBirth *string `json:"date_of_birth"` // YYYY-MM-DD
}

type PetResponse struct {
	ID          string  `json:"id"`
	ClientID    string  `json:"client_id"`
	Name        string  `json:"name"`
	Species     string  `json:"species,omitempty"`
	Breed       string  `json:"breed,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
}

type ClientResponse struct {
	ID        string        `json:"id"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Email     string        `json:"email,omitempty"`
	Phone     string        `json:"phone,omitempty"`
	Address   string        `json:"address,omitempty"`
	Pets      []PetResponse `json:"pets,omitempty"`
	CreatedAt string        `json:"created_at"`
}

type ClientService interface {
	CreateClient(ctx context.Context, userID string, req CreateClientRequest) (*ClientResponse, error)
	UpdateClient(ctx context.Context, userID string, id string, req UpdateClientRequest) (*ClientResponse, error)
	DeleteClient(ctx context.Context, userID string, id string) error
	GetClient(ctx context.Context, id string) (*ClientResponse, error)
	ListClients(ctx context.Context, search string, page, limit int) ([]ClientResponse, int64, error)
	AddPet(ctx context.Context, clientID string, req CreatePetRequest) (*PetResponse, error)
}

type clientService struct {
	clients   repository.ClientRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
}

func NewClientService(clients repository.ClientRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager) ClientService {
	return &clientService{clients: clients, auditRepo: auditRepo, txManager: txManager}
}

func (s *clientService) CreateClient(ctx context.Context, userID string, req CreateClientRequest) (*ClientResponse, error) {
	client := &model.Client{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.clients.Create(txCtx, client); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		return s.writeClientAudit(txCtx, userID, model.ActionCreateClient, client, req)
	})
	if err != nil {
		return nil, err
	}

	res := toClientResponse(client)
	return &res, nil
}

func (s *clientService) UpdateClient(ctx context.Context, userID string, id string, req UpdateClientRequest) (*ClientResponse, error) {
	clientID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "invalid client id"}
	}

	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "client", ID: id}
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	client.FirstName = req.FirstName
	client.LastName = req.LastName
	client.Email = req.Email
	client.Phone = req.Phone
	client.Address = req.Address

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.clients.Update(txCtx, client); err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}
		return s.writeClientAudit(txCtx, userID, model.ActionUpdateClient, client, req)
	})
	if err != nil {
		return nil, err
	}

	res := toClientResponse(client)
	return &res, nil
}

func (s *clientService) DeleteClient(ctx context.Context, userID string, id string) error {
	clientID, err := uuid.Parse(id)
	if err != nil {
		return &ValidationError{Field: "id", Message: "invalid client id"}
	}

	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "client", ID: id}
		}
		return fmt.Errorf("failed to load client: %w", err)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.clients.Delete(txCtx, clientID); err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}
		return s.writeClientAudit(txCtx, userID, model.ActionDeleteClient, client, map[string]bool{"deleted": true})
	})
}

func (s *clientService) GetClient(ctx context.Context, id string) (*ClientResponse, error) {
	clientID, err := uuid.Parse(id)
	if err != nil {
		return nil, &ValidationError{Field: "id", Message: "invalid client id"}
	}

	client, err := s.clients.FindByIDWithPets(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "client", ID: id}
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	res := toClientResponse(client)
	return &res, nil
}

func (s *clientService) ListClients(ctx context.Context, search string, page, limit int) ([]ClientResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	clients, total, err := s.clients.List(ctx, search, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch clients: %w", err)
	}

	res := make([]ClientResponse, 0, len(clients))
	for i := range clients {
		res = append(res, toClientResponse(&clients[i]))
	}
	return res, total, nil
}

func (s *clientService) AddPet(ctx context.Context, clientID string, req CreatePetRequest) (*PetResponse, error) {
	parsed, err := uuid.Parse(clientID)
	if err != nil {
		return nil, &ValidationError{Field: "client_id", Message: "invalid client id"}
	}

	if _, err := s.clients.FindByID(ctx, parsed); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "client", ID: clientID}
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	pet := &model.Pet{
		ClientID: parsed,
		Name:     req.Name,
		Species:  req.Species,
		Breed:    req.Breed,
	}
	if req.DateOfBirth != nil && *req.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", *req.DateOfBirth)
		if err != nil {
			return nil, &ValidationError{Field: "date_of_birth", Message: "must be YYYY-MM-DD"}
		}
		pet.DateOfBirth = &dob
	}

	if err := s.clients.CreatePet(ctx, pet); err != nil {
		return nil, fmt.Errorf("failed to create pet: %w", err)
	}

	res := toPetResponse(pet)
	return &res, nil
}

func (s *clientService) writeClientAudit(ctx context.Context, userID, action string, client *model.Client, details interface{}) error {
	payload, _ := json.Marshal(details)
	audit := &model.AuditLog{
		UserID:     parseActorID(userID),
		Action:     action,
		EntityID:   client.ID.String(),
		EntityName: client.FullName(),
		Details:    string(payload),
	}
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toClientResponse(client *model.Client) ClientResponse {
	res := ClientResponse{
		ID:        client.ID.String(),
		FirstName: client.FirstName,
		LastName:  client.LastName,
		Email:     client.Email,
		Phone:     client.Phone,
		Address:   client.Address,
		CreatedAt: client.CreatedAt.Format(time.RFC3339),
	}
	for i := range client.Pets {
		res.Pets = append(res.Pets, toPetResponse(&client.Pets[i]))
	}
	return res
}

func toPetResponse(pet *model.Pet) PetResponse {
	res := PetResponse{
		ID:       pet.ID.String(),
		ClientID: pet.ClientID.String(),
		Name:     pet.Name,
		Species:  pet.Species,
		Breed:    pet.Breed,
	}
	if pet.DateOfBirth != nil {
		dob := pet.DateOfBirth.Format("2006-01-02")
		res.DateOfBirth = &dob
	}
	return res
}
