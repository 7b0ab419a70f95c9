package httpapi

import (
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/server/models"
	"github.com/dmitrijs2005/leasekeeper/internal/server/services"
)

const secondsPerDay = 86400

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID               int64       `json:"id"`
	Username         string      `json:"username"`
	Role             models.Role `json:"role"`
	RemainingSeconds int64       `json:"remainingSeconds"`
	RemainingDays    float64     `json:"remainingDays"`
	CreatedAt        time.Time   `json:"createdAt"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Username:         u.UserName,
		Role:             u.Role,
		RemainingSeconds: u.RemainingSeconds,
		RemainingDays:    float64(u.RemainingSeconds) / secondsPerDay,
		CreatedAt:        u.CreatedAt,
	}
}

type createUserRequest struct {
	Username      string   `json:"username"`
	Password      string   `json:"password"`
	Role          *string  `json:"role"`
	RemainingDays *float64 `json:"remainingDays"`
}

type updateUserRequest struct {
	Password      *string  `json:"password"`
	Role          *string  `json:"role"`
	RemainingDays *float64 `json:"remainingDays"`
}

type deleteUserResponse struct {
	Deleted int64 `json:"deleted"`
}

func daysToSeconds(d float64) int64 {
	return int64(d * secondsPerDay)
}

type occupyRequest struct {
	ResourceID string `json:"resourceId"`
}

type occupyResponse struct {
	ResourceID string `json:"resourceId"`
	Granted    bool   `json:"granted"`
	HolderName string `json:"holderName,omitempty"`
}

type heartbeatRequest struct {
	ActiveResourceID string `json:"activeResourceId"`
}

type occupancyItem struct {
	ResourceID string `json:"resourceId"`
	HolderID   int64  `json:"holderId"`
	HolderName string `json:"holderName"`
}

type heartbeatResponse struct {
	Status                string          `json:"status"`
	RemainingQuotaSeconds int64           `json:"remainingQuotaSeconds"`
	OccupancySnapshot     []occupancyItem `json:"occupancySnapshot"`
}

func newHeartbeatResponse(res *services.HeartbeatResult) heartbeatResponse {
	items := make([]occupancyItem, 0, len(res.Snapshot))
	for _, o := range res.Snapshot {
		items = append(items, occupancyItem{ResourceID: o.ResourceID, HolderID: o.HolderUserID, HolderName: o.HolderName})
	}
	return heartbeatResponse{
		Status:                res.Status,
		RemainingQuotaSeconds: res.RemainingSeconds,
		OccupancySnapshot:     items,
	}
}

type syncDocumentResponse struct {
	CipherText string `json:"cipherText"`
	Version    int64  `json:"version"`
}

type syncPutRequest struct {
	CipherText     string `json:"cipherText"`
	BasedOnVersion int64  `json:"basedOnVersion"`
}

type syncDeleteRequest struct {
	RecordID string `json:"recordId"`
}

type syncWriteResponse struct {
	NewVersion int64 `json:"newVersion"`
}
