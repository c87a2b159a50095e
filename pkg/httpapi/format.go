// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package httpapi

import (
	"encoding/csv"
	"fmt"
	"html"
	"net/http"
	"strconv"

	"github.com/wingedpig/ipintel/pkg/model"
)

// writeFormatted renders a Response in one of the five output
// formats the lookup endpoints support.
func writeFormatted(w http.ResponseWriter, format string, resp model.Response) {
	switch format {
	case "toon":
		writeToon(w, resp)
	case "txt":
		writeText(w, resp)
	case "csv":
		writeCSV(w, resp)
	case "html":
		writeHTML(w, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// writeToon emits a compact "token: value, token: value" line, a
// terser sibling of JSON for scripts that just grep a handful of
// fields rather than parse structured output.
func writeToon(w http.ResponseWriter, resp model.Response) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ip: %s, rir: %s, is_bogon: %t, is_datacenter: %t, is_tor: %t, is_proxy: %t, is_vpn: %t, is_abuser: %t",
		resp.IP, resp.RIR, resp.IsBogon, resp.IsDatacenter, resp.IsTor, resp.IsProxy, resp.IsVPN, resp.IsAbuser)
	if resp.ASNInfo != nil {
		fmt.Fprintf(w, ", asn: %d, asn_name: %s", resp.ASNInfo.ASN, resp.ASNInfo.Name)
	}
	if resp.Company != nil {
		fmt.Fprintf(w, ", company: %s", resp.Company.Name)
	}
	if resp.Location != nil {
		fmt.Fprintf(w, ", country: %s, city: %s", resp.Location.Country, resp.Location.City)
	}
	fmt.Fprintln(w)
}

func writeText(w http.ResponseWriter, resp model.Response) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "IP:            %s\n", resp.IP)
	fmt.Fprintf(w, "RIR:           %s\n", resp.RIR)
	fmt.Fprintf(w, "Bogon:         %t\n", resp.IsBogon)
	fmt.Fprintf(w, "Datacenter:    %t\n", resp.IsDatacenter)
	fmt.Fprintf(w, "Tor:           %t\n", resp.IsTor)
	fmt.Fprintf(w, "Proxy:         %t\n", resp.IsProxy)
	fmt.Fprintf(w, "VPN:           %t\n", resp.IsVPN)
	fmt.Fprintf(w, "Abuser:        %t\n", resp.IsAbuser)
	if resp.ASNInfo != nil {
		fmt.Fprintf(w, "ASN:           AS%d (%s)\n", resp.ASNInfo.ASN, resp.ASNInfo.Name)
	}
	if resp.Company != nil {
		fmt.Fprintf(w, "Company:       %s\n", resp.Company.Name)
	}
	if resp.Location != nil {
		fmt.Fprintf(w, "Location:      %s, %s, %s\n", resp.Location.City, resp.Location.Region, resp.Location.Country)
		fmt.Fprintf(w, "Timezone:      %s (%s)\n", resp.Location.Timezone, resp.Location.LocalTime)
	}
	fmt.Fprintf(w, "Elapsed:       %.3fms\n", resp.ElapsedMS)
}

func writeCSV(w http.ResponseWriter, resp model.Response) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"ip", "rir", "is_bogon", "is_datacenter", "is_tor", "is_proxy", "is_vpn", "is_abuser", "asn", "asn_name", "company", "country", "city"}
	cw.Write(header)

	asn, asnName := "", ""
	if resp.ASNInfo != nil {
		asn = strconv.Itoa(resp.ASNInfo.ASN)
		asnName = resp.ASNInfo.Name
	}
	company := ""
	if resp.Company != nil {
		company = resp.Company.Name
	}
	country, city := "", ""
	if resp.Location != nil {
		country, city = resp.Location.Country, resp.Location.City
	}

	cw.Write([]string{
		resp.IP, resp.RIR,
		strconv.FormatBool(resp.IsBogon), strconv.FormatBool(resp.IsDatacenter),
		strconv.FormatBool(resp.IsTor), strconv.FormatBool(resp.IsProxy),
		strconv.FormatBool(resp.IsVPN), strconv.FormatBool(resp.IsAbuser),
		asn, asnName, company, country, city,
	})
}

func writeHTML(w http.ResponseWriter, resp model.Response) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<table>\n<tr><th>IP</th><td>%s</td></tr>\n", html.EscapeString(resp.IP))
	fmt.Fprintf(w, "<tr><th>RIR</th><td>%s</td></tr>\n", html.EscapeString(resp.RIR))
	fmt.Fprintf(w, "<tr><th>Bogon</th><td>%t</td></tr>\n", resp.IsBogon)
	fmt.Fprintf(w, "<tr><th>Datacenter</th><td>%t</td></tr>\n", resp.IsDatacenter)
	if resp.ASNInfo != nil {
		fmt.Fprintf(w, "<tr><th>ASN</th><td>AS%d (%s)</td></tr>\n", resp.ASNInfo.ASN, html.EscapeString(resp.ASNInfo.Name))
	}
	if resp.Company != nil {
		fmt.Fprintf(w, "<tr><th>Company</th><td>%s</td></tr>\n", html.EscapeString(resp.Company.Name))
	}
	if resp.Location != nil {
		fmt.Fprintf(w, "<tr><th>Location</th><td>%s, %s</td></tr>\n", html.EscapeString(resp.Location.City), html.EscapeString(resp.Location.Country))
	}
	fmt.Fprintln(w, "</table>")
}
