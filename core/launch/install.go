package launch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/errors"
)

// materialize places one file entry into the store. Entries with a zero size
// live inside the trailing scie-tote zip and require the tote first; sourced
// entries are produced by a binding writing to stdout.
func (c *Context) materialize(file *config.File) error {
	if c.installed[file.Name] {
		return nil
	}
	switch {
	case file.Source != "":
		if err := c.materializeSourced(file); err != nil {
			return err
		}
	case file.Size != nil && *file.Size == 0:
		if err := c.materializeFromTote(file); err != nil {
			return err
		}
	default:
		payload, err := c.payloadFor(file)
		if err != nil {
			return err
		}
		if _, err := c.store.Materialize(*file, payload); err != nil {
			return errors.Wrap(err, errors.CategoryIntegrity, "payload_mismatch", "", false)
		}
	}
	c.installed[file.Name] = true
	return nil
}

func (c *Context) payloadFor(file *config.File) ([]byte, error) {
	start, found := c.offsets[file.Name]
	if !found {
		return nil, fmt.Errorf("file %s has no payload region in this scie", file.Name)
	}
	if file.Size == nil {
		return nil, configError(fmt.Sprintf("file %s carries no size; a scie tip requires one", file.Name))
	}
	payload := c.scie.Payload()
	end := start + int(*file.Size)
	if end > len(payload) {
		return nil, errors.Wrap(
			fmt.Errorf("file %s claims bytes %d..%d but the payload region holds only %d bytes", file.Name, start, end, len(payload)),
			errors.CategoryFormat, "payload_overrun", "", false)
	}
	return payload[start:end], nil
}

// materializeFromTote extracts the trailing scie-tote zip, then materializes
// the member file from the extracted tree. The member's manifest size is the
// tote convention zero, so size verification is skipped; its hash still holds.
func (c *Context) materializeFromTote(file *config.File) error {
	tote, err := c.toteFile()
	if err != nil {
		return err
	}
	if err := c.materialize(tote); err != nil {
		return err
	}
	memberPath := filepath.Join(c.store.ArtifactPath(*tote), file.Name)
	payload, err := os.ReadFile(memberPath)
	if err != nil {
		return fmt.Errorf("read %s from the extracted scie-tote: %w", file.Name, err)
	}
	loose := *file
	loose.Size = nil
	if _, err := c.store.Materialize(loose, payload); err != nil {
		return errors.Wrap(err, errors.CategoryIntegrity, "tote_member_mismatch", "", false)
	}
	return nil
}

func (c *Context) toteFile() (*config.File, error) {
	if len(c.lift.Files) == 0 {
		return nil, configError("the lift manifest declares scie-tote entries but no files")
	}
	tote := &c.lift.Files[len(c.lift.Files)-1]
	if tote.Size == nil || *tote.Size == 0 || tote.Source != "" {
		return nil, configError(fmt.Sprintf("the lift manifest contains scie-tote entries but its last file %s cannot hold them", tote.Name))
	}
	return tote, nil
}

// materializeEager extracts every file flagged eager_extract, regardless of
// whether the selected command references it.
func (c *Context) materializeEager() error {
	for index := range c.lift.Files {
		file := &c.lift.Files[index]
		if !file.EagerExtract {
			continue
		}
		if err := c.materialize(file); err != nil {
			return err
		}
	}
	return nil
}
