package models

import (
	"errors"
	"slices"
)

// Status - статус позиции заказа
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPayed     Status = "payed"
	StatusDeliver   Status = "deliver"
	StatusRejected  Status = "rejected"
	StatusCanceled  Status = "canceled"
	StatusDone      Status = "done"
)

// Role - сторона заказа, инициирующая переход
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

var (
	ErrUnknownStatus     = errors.New("unknown status")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrRoleNotAllowed    = errors.New("role is not allowed to perform transition")
)

// transition описывает допустимый переход и роли, которые могут его выполнить
type transition struct {
	to    Status
	roles []Role
}

var transitions = map[Status][]transition{
	StatusPending: {
		{to: StatusConfirmed, roles: []Role{RoleSeller}},
		{to: StatusRejected, roles: []Role{RoleSeller}},
		{to: StatusCanceled, roles: []Role{RoleBuyer}},
	},
	StatusConfirmed: {
		{to: StatusPayed, roles: []Role{RoleBuyer}},
		{to: StatusDeliver, roles: []Role{RoleSeller}},
		{to: StatusCanceled, roles: []Role{RoleBuyer, RoleSeller}},
	},
	StatusPayed: {
		{to: StatusDeliver, roles: []Role{RoleSeller}},
	},
	StatusDeliver: {
		{to: StatusDone, roles: []Role{RoleSeller}},
	},
}

// порядок продвижения нетерминальных статусов
var progress = map[Status]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusPayed:     2,
	StatusDeliver:   3,
}

// ParseStatus проверяет, что строка является известным статусом
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusPayed, StatusDeliver,
		StatusRejected, StatusCanceled, StatusDone:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// IsTerminal - из терминального статуса переходов нет
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusRejected || s == StatusCanceled
}

// CheckTransition проверяет переход from -> to для роли.
// ErrIllegalTransition - пары нет в таблице, ErrRoleNotAllowed - пара есть, но не для этой роли
func CheckTransition(from, to Status, role Role) error {
	for _, t := range transitions[from] {
		if t.to != to {
			continue
		}
		if slices.Contains(t.roles, role) {
			return nil
		}
		return ErrRoleNotAllowed
	}
	return ErrIllegalTransition
}

// DeriveOrderStatus вычисляет статус заказа по статусам его позиций:
// наименее продвинутый нетерминальный статус, а если все позиции завершены,
// done, если есть выполненные, иначе canceled, иначе rejected
func DeriveOrderStatus(items []Status) Status {
	if len(items) == 0 {
		return StatusPending
	}

	derived := Status("")
	var hasDone, hasCanceled bool
	for _, st := range items {
		switch {
		case st == StatusDone:
			hasDone = true
		case st == StatusCanceled:
			hasCanceled = true
		case st.IsTerminal():
		default:
			if derived == "" || progress[st] < progress[derived] {
				derived = st
			}
		}
	}

	switch {
	case derived != "":
		return derived
	case hasDone:
		return StatusDone
	case hasCanceled:
		return StatusCanceled
	}
	return StatusRejected
}
