package config

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/go-playground/validator/v10"
)

// ValidateConfig validates the entire configuration and returns all validation errors
func (c *Config) ValidateConfig() error {
	var validationErrors ValidationErrors

	if err := validate.Struct(c.General); err != nil {
		validationErrors = append(validationErrors, convertValidatorErrors(err, "general", "")...)
	}

	validationErrors = append(validationErrors, c.validateNamespaces()...)

	if len(c.PBRMaps) == 0 {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "pbr_map",
			Message:   "configuration must contain at least one pbr_map",
		})
	} else {
		validationErrors = append(validationErrors, c.validatePBRMaps()...)
	}

	validationErrors = append(validationErrors, c.validatePolicies()...)

	if len(validationErrors) > 0 {
		return validationErrors
	}

	return nil
}

func (c *Config) validateNamespaces() ValidationErrors {
	var validationErrors ValidationErrors
	seenNames := make(map[string]bool)

	for i, ns := range c.Namespaces {
		itemName := ns.Name
		if itemName == "" {
			itemName = fmt.Sprintf("namespace[%d]", i)
		}

		if err := validate.Struct(ns); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, fmt.Sprintf("namespace.%d", i), itemName)...)
		}

		if seenNames[ns.Name] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: "name",
				Message:   fmt.Sprintf("duplicate namespace: %s", ns.Name),
			})
		}
		seenNames[ns.Name] = true
	}

	return validationErrors
}

func (c *Config) validatePBRMaps() ValidationErrors {
	var validationErrors ValidationErrors
	seenNames := make(map[string]bool)

	for i, m := range c.PBRMaps {
		itemName := m.Name
		if itemName == "" {
			itemName = fmt.Sprintf("pbr_map[%d]", i)
		}

		if err := validate.Struct(m); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, fmt.Sprintf("pbr_map.%d", i), itemName)...)
		}

		if seenNames[m.Name] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: "name",
				Message:   fmt.Sprintf("duplicate pbr_map name: %s", m.Name),
			})
		}
		seenNames[m.Name] = true

		validationErrors = append(validationErrors, c.validateSequences(itemName, m)...)
	}

	return validationErrors
}

func (c *Config) validateSequences(itemName string, m *PBRMapConfig) ValidationErrors {
	var validationErrors ValidationErrors
	seenSeqs := make(map[uint32]bool)

	for j, seq := range m.Sequences {
		fieldPrefix := fmt.Sprintf("seq.%d", j)

		if err := validate.Struct(seq); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, fieldPrefix, itemName)...)
			continue
		}

		if seenSeqs[seq.Seq] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix + ".seq",
				Message:   fmt.Sprintf("duplicate sequence number: %d", seq.Seq),
			})
		}
		seenSeqs[seq.Seq] = true

		if seq.SrcIP == "" && seq.DstIP == "" {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix,
				Message:   "must specify src_ip, dst_ip or both",
			})
			continue
		}

		src, dst, err := seq.Prefixes()
		if err != nil {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix,
				Message:   err.Error(),
			})
			continue
		}

		// The kernel omits FRA_SRC/FRA_DST for zero-length prefixes
		if zeroLength(src) || zeroLength(dst) {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix,
				Message:   "zero-length prefix matches everything, omit src_ip/dst_ip or use a longer prefix",
			})
			continue
		}

		if src.IsValid() && dst.IsValid() && src.Addr().Is4() != dst.Addr().Is4() {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPrefix,
				Message:   fmt.Sprintf("src_ip %s and dst_ip %s have different address families", seq.SrcIP, seq.DstIP),
			})
		}
	}

	return validationErrors
}

func zeroLength(p netip.Prefix) bool {
	return p.IsValid() && p.Bits() == 0
}

func (c *Config) validatePolicies() ValidationErrors {
	var validationErrors ValidationErrors

	knownNamespaces := make(map[string]bool)
	for _, name := range c.NamespaceNames() {
		knownNamespaces[name] = true
	}
	seenBindings := make(map[string]bool)

	for i, p := range c.Policies {
		itemName := p.Interface
		if itemName == "" {
			itemName = fmt.Sprintf("pbr_policy[%d]", i)
		}

		if err := validate.Struct(p); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, fmt.Sprintf("pbr_policy.%d", i), itemName)...)
		}

		if p.PBRMap != "" && c.PBRMap(p.PBRMap) == nil {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: "pbr_map",
				Message:   fmt.Sprintf("unknown pbr_map: %s", p.PBRMap),
			})
		}

		if !knownNamespaces[p.Namespace] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: "namespace",
				Message:   fmt.Sprintf("unknown namespace: %s", p.Namespace),
			})
		}

		key := p.Namespace + "/" + p.Interface
		if seenBindings[key] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: "interface",
				Message:   fmt.Sprintf("interface %s is already bound to a pbr_map", p.Interface),
			})
		}
		seenBindings[key] = true
	}

	return validationErrors
}

// convertValidatorErrors converts go-playground/validator errors to our ValidationError format
func convertValidatorErrors(err error, fieldPrefix string, itemName string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			fieldPath := fieldPrefix
			if e.Field() != "" {
				// e.Field() returns the TOML tag name because we registered TagNameFunc
				if fieldPrefix != "" {
					fieldPath = fieldPrefix + "." + e.Field()
				} else {
					fieldPath = e.Field()
				}
			}

			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}
