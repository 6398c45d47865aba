package title

import (
	"encoding/json"
	"strings"
)

// Structure is the set of structural components observed in a container.
type Structure uint32

const (
	RootPartition Structure = 1 << iota
	UpdatePartition
	NormalPartition
	SecurePartition
	LogoPartition
	CnmtXML
	CnmtNCA
	Cert
	Tik
	LegalinfoXML
	NacpXML
	PrograminfoXML
	CardspecXML
	AuthoringtoolinfoXML
)

var structureNames = []struct {
	flag Structure
	name string
}{
	{RootPartition, "RootPartition"},
	{UpdatePartition, "UpdatePartition"},
	{NormalPartition, "NormalPartition"},
	{SecurePartition, "SecurePartition"},
	{LogoPartition, "LogoPartition"},
	{CnmtXML, "CnmtXml"},
	{CnmtNCA, "CnmtNca"},
	{Cert, "Cert"},
	{Tik, "Tik"},
	{LegalinfoXML, "LegalinfoXml"},
	{NacpXML, "NacpXml"},
	{PrograminfoXML, "PrograminfoXml"},
	{CardspecXML, "CardspecXml"},
	{AuthoringtoolinfoXML, "AuthoringtoolinfoXml"},
}

// Add sets flag in the structure.
func (s *Structure) Add(flag Structure) { *s |= flag }

// Has reports whether every bit of flag is present.
func (s Structure) Has(flag Structure) bool { return s&flag == flag && flag != 0 }

// Names lists the flags present, in declaration order.
func (s Structure) Names() []string {
	var names []string
	for _, entry := range structureNames {
		if s.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}
	return names
}

func (s Structure) String() string {
	return strings.Join(s.Names(), ", ")
}

func (s Structure) MarshalJSON() ([]byte, error) {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

func (s *Structure) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = 0
	for _, name := range names {
		for _, entry := range structureNames {
			if entry.name == name {
				s.Add(entry.flag)
			}
		}
	}
	return nil
}
