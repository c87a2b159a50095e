// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package arinbulk

// NetBlock represents an ARIN network block (NetRange)
type NetBlock struct {
	Start      uint32   // Start IP (big-endian uint32 for IPv4)
	End        uint32   // End IP (big-endian uint32 for IPv4)
	NetName    string   // Network name
	NetHandle  string   // ARIN net handle (e.g., NET-8-0-0-0-1)
	OrgID      string   // Organization ID (e.g., LPL-141)
	NetType    string   // Direct Allocation, Direct Assignment, etc.
	ParentNet  string   // Parent network handle
	CIDR       []string // CIDR blocks (can be multiple)
	Comments   []string // Comments
	UpdateDate string   // Last updated date
}

// Organization represents an ARIN organization
type Organization struct {
	OrgID      string // Organization ID (e.g., LPL-141)
	OrgName    string // Organization name
	Address    string // Street address
	City       string
	StateProv  string // State/Province
	PostalCode string
	Country    string
	UpdateDate string
}

