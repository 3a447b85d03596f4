package xml_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-manager/internal/model"
	xmlparser "github.com/rezonia/fiscal-manager/internal/parser/xml"
)

const consStatXSD = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           xmlns="http://www.portalfiscal.inf.br/nfe"
           targetNamespace="http://www.portalfiscal.inf.br/nfe"
           elementFormDefault="qualified">
  <xs:element name="consStatServ">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="tpAmb">
          <xs:simpleType>
            <xs:restriction base="xs:string">
              <xs:enumeration value="1"/>
              <xs:enumeration value="2"/>
            </xs:restriction>
          </xs:simpleType>
        </xs:element>
        <xs:element name="cUF" type="xs:string"/>
        <xs:element name="xServ" type="xs:string"/>
      </xs:sequence>
      <xs:attribute name="versao" type="xs:string" use="required"/>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consStatServ_v4.00.xsd")
	require.NoError(t, os.WriteFile(path, []byte(consStatXSD), 0o600))
	return path
}

func TestSchema_Validate(t *testing.T) {
	schema, err := xmlparser.LoadSchema(writeSchema(t))
	require.NoError(t, err)
	defer schema.Close()

	valid := `<consStatServ xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><tpAmb>2</tpAmb><cUF>35</cUF><xServ>STATUS</xServ></consStatServ>`
	assert.NoError(t, schema.Validate([]byte(valid)))

	invalid := `<consStatServ xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><tpAmb>3</tpAmb><cUF>35</cUF><xServ>STATUS</xServ></consStatServ>`
	err = schema.Validate([]byte(invalid))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalid)

	var serr *xmlparser.SchemaError
	require.ErrorAs(t, err, &serr)
	assert.NotEmpty(t, serr.Messages)
}

func TestSchema_Missing(t *testing.T) {
	_, err := xmlparser.LoadSchema(filepath.Join(t.TempDir(), "nope.xsd"))
	assert.Error(t, err)
}

func TestSchema_Closed(t *testing.T) {
	schema, err := xmlparser.LoadSchema(writeSchema(t))
	require.NoError(t, err)
	schema.Close()
	schema.Close()
	assert.Error(t, schema.Validate([]byte("<x/>")))
}
